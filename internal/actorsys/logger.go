package actorsys

import "log"

// stdLogger wraps stdlib log with a node-name tag, matching the
// teacher's own `log.Printf("[pipeline] ...")` idiom (pkg/pipeline/pipeline.go)
// rather than introducing a third-party structured logger the teacher
// itself never uses (SPEC_FULL.md Ambient Stack).
type stdLogger struct{ tag string }

func (l stdLogger) Infof(format string, args ...any) {
	log.Printf("[%s] "+format, append([]any{l.tag}, args...)...)
}

func (l stdLogger) Errorf(format string, args ...any) {
	log.Printf("[%s] ERROR: "+format, append([]any{l.tag}, args...)...)
}
