// Package nlp turns an operator's free-text request into structured pieces:
// an Intent, a set of Entities, and the WorkflowID bound to the intent.
//
// Matching is keyword and regular-expression based. Nothing here is
// statistical and nothing here fails: a request that matches no rule yields
// IntentUnknown and an empty Entities map.
//
// Keyword tests are plain substring checks on the lower-cased text, so
// "terminated" matches "terminate" and "production" matches "prod". Callers
// that need word boundaries must not rely on this package for them.
package nlp
