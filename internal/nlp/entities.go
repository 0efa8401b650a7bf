package nlp

import (
	"errors"
	"maps"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Field names an extractable request parameter.
type Field string

const (
	FieldApp       Field = "app"
	FieldReplicas  Field = "replicas"
	FieldNamespace Field = "namespace"
	FieldImage     Field = "image"
	FieldVersion   Field = "version"
	FieldProvider  Field = "provider"
	FieldCluster   Field = "cluster"

	// FieldTarget selects the deploy backend (docker, k8s, helm, terraform, cloud).
	FieldTarget Field = "target"
	// FieldRepo is an owner/name repository reference.
	FieldRepo Field = "repo"
)

// Entities maps a field to its extracted value. Values are string, except
// FieldReplicas which is a non-negative int. A replica count outside the
// int32 range is still present; check it with ValidReplicas. A string key is
// either present with a non-empty value or absent.
type Entities map[Field]any

// String returns the string value of f, or "".
func (e Entities) String(f Field) string {
	s, _ := e[f].(string)
	return s
}

// Int returns the int value of f and whether it was present.
func (e Entities) Int(f Field) (int, bool) {
	n, ok := e[f].(int)
	return n, ok
}

// Has reports whether f was extracted.
func (e Entities) Has(f Field) bool {
	_, ok := e[f]
	return ok
}

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (e Entities) Clone() Entities {
	out := make(Entities, len(e))
	maps.Copy(out, e)
	return out
}

// Extraction is the output of Extractor.Parse.
type Extraction struct {
	Entities Entities
	// Inferred lists fields filled by a heuristic fallback rather than an
	// explicit vocabulary or pattern match. Only FieldApp can be inferred.
	Inferred map[Field]bool
}

var (
	knownApps   = []string{"nginx", "api", "backend", "frontend", "mysql", "redis"}
	namespaces  = []string{"dev", "staging", "prod", "production", "test", "default"}
	providers   = []string{"aws", "gcp", "azure"}
	clusterKind = []string{"eks", "aks", "gke", "k3s", "minikube"}

	targetWords = []struct{ word, target string }{
		{"docker", "docker"},
		{"helm", "helm"},
		{"terraform", "terraform"},
		{"kubernetes", "k8s"},
		{"k8s", "k8s"},
		{"cloud", "cloud"},
	}

	replicaCountRe = regexp.MustCompile(`(\d+)\s*(replicas?|instances?|pods?)`)
	scaleToRe      = regexp.MustCompile(`scale(d)?\s*(to\s*)?(\d+)`)
	scaleAppToRe   = regexp.MustCompile(`scaled?\s+[a-z0-9-]+\s+to\s+(\d+)`)
	imageRe        = regexp.MustCompile(`[a-z0-9-]+/?[a-z0-9-]+:[a-z0-9.-]+`)
	versionRe      = regexp.MustCompile(`v[0-9]+(\.[0-9]+)?`)
	repoRe         = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*/[a-z0-9][a-z0-9_.-]*$`)
)

// Extractor pulls Entities out of request text. The zero value is ready to
// use and safe for concurrent calls.
type Extractor struct{}

// NewExtractor returns an Extractor.
func NewExtractor() *Extractor { return &Extractor{} }

// Parse runs every field rule against text. Rules are independent of each
// other; a rule that does not match leaves its field absent.
func (x *Extractor) Parse(text string) Extraction {
	text = strings.ToLower(text)
	out := Extraction{Entities: Entities{}, Inferred: map[Field]bool{}}

	if app, inferred := extractApp(text); app != "" {
		out.Entities[FieldApp] = app
		if inferred {
			out.Inferred[FieldApp] = true
		}
	}
	if n, ok := extractReplicas(text); ok {
		out.Entities[FieldReplicas] = n
	}

	setString(out.Entities, FieldNamespace, firstContained(text, namespaces))
	setString(out.Entities, FieldProvider, firstContained(text, providers))
	setString(out.Entities, FieldCluster, firstContained(text, clusterKind))
	setString(out.Entities, FieldImage, imageRe.FindString(text))
	setString(out.Entities, FieldVersion, versionRe.FindString(text))
	setString(out.Entities, FieldTarget, extractTarget(text))
	setString(out.Entities, FieldRepo, extractRepo(text, out.Entities.String(FieldImage)))

	return out
}

func setString(e Entities, f Field, v string) {
	if v != "" {
		e[f] = v
	}
}

func firstContained(text string, words []string) string {
	for _, w := range words {
		if strings.Contains(text, w) {
			return w
		}
	}
	return ""
}

// extractApp returns a known app name, or the first alphabetic token longer
// than two characters. The fallback often captures the verb itself
// ("deploy"), which is why it is reported as inferred.
func extractApp(text string) (string, bool) {
	if app := firstContained(text, knownApps); app != "" {
		return app, false
	}
	for _, tok := range strings.Fields(text) {
		if len([]rune(tok)) > 2 && isAlpha(tok) {
			return tok, true
		}
	}
	return "", false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// extractReplicas prefers "<n> replicas|instances|pods", then "scale[d] [to] <n>",
// then "scale[d] <name> to <n>".
func extractReplicas(text string) (int, bool) {
	if m := replicaCountRe.FindStringSubmatch(text); m != nil {
		return replicaCount(m[1])
	}
	if m := scaleToRe.FindStringSubmatch(text); m != nil {
		return replicaCount(m[3])
	}
	if m := scaleAppToRe.FindStringSubmatch(text); m != nil {
		return replicaCount(m[1])
	}
	return 0, false
}

// replicaCount parses a count. Too many digits for an int clamp to the
// largest int, so the field stays present and out of range.
func replicaCount(digits string) (int, bool) {
	n, err := strconv.Atoi(digits)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return n, true
}

// ValidReplicas reports whether n can be used as a replica count.
func ValidReplicas(n int) bool {
	return n >= 0 && n <= math.MaxInt32
}

func extractTarget(text string) string {
	for _, tw := range targetWords {
		if strings.Contains(text, tw.word) {
			return tw.target
		}
	}
	return ""
}

// extractRepo finds an owner/name token that is not the image reference.
func extractRepo(text, image string) string {
	for _, tok := range strings.Fields(text) {
		tok = strings.TrimRight(tok, ".,;")
		if !repoRe.MatchString(tok) || (image != "" && strings.Contains(image, tok)) {
			continue
		}
		return tok
	}
	return ""
}
