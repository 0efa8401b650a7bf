// Package hooks runs handlers on session lifecycle events.
//
// Events are session_start, session_end, before_clear, after_clear and
// after_dispatch. The session store fires the first four; the router fires
// after_dispatch once per processed request.
package hooks
