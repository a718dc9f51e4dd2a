package social

import (
	"net/http"
	"strings"
)

// Stage is one step of the login pipeline.
type Stage struct {
	Name    string
	Match   func(r *http.Request) bool
	Handler http.Handler
}

// Pipeline runs the first matching stage in order and hands every other
// request to the next handler. The redirect stage comes before the
// callback stage, and both before the application.
type Pipeline struct {
	stages []Stage
}

// NewPipeline creates a pipeline with stages in the given order.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Middleware wraps next with the pipeline.
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, s := range p.stages {
			if s.Match(r) {
				s.Handler.ServeHTTP(w, r)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// matchPrefix matches requests under prefix/ with one of methods.
func matchPrefix(prefix string, methods ...string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if !strings.HasPrefix(r.URL.Path, prefix+"/") {
			return false
		}
		for _, m := range methods {
			if r.Method == m {
				return true
			}
		}
		return false
	}
}
