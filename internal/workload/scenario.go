// Package workload runs scripted thread scenarios on the scheduler.
//
// A scenario is a YAML file naming thread bodies written in JavaScript. Each
// logical thread gets its own JavaScript VM with bindings for the thread
// library calls.
package workload

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dop251/goja"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/me/uthreads/pkg/model"
)

// Scenario describes one workload.
type Scenario struct {
	Name       string        `yaml:"name" json:"name" validate:"required,max=64"`
	Quantum    time.Duration `yaml:"quantum" json:"quantum" validate:"gte=0"`
	MaxThreads int           `yaml:"max_threads" json:"max_threads" validate:"gte=0,lte=100000"`
	Main       string        `yaml:"main" json:"main,omitempty" validate:"omitempty,jsscript"`
	Threads    []ThreadSpec  `yaml:"threads" json:"threads" validate:"required,min=1,unique=Name,dive"`
}

// ThreadSpec is one scripted thread body.
type ThreadSpec struct {
	Name   string `yaml:"name" json:"name" validate:"required,max=64"`
	Count  int    `yaml:"count" json:"count" validate:"gte=0,lte=10000"` // 0 means 1
	Script string `yaml:"script" json:"script" validate:"required,jsscript"`
	// Deferred bodies are not started with the scenario; scripts start them
	// with spawn(name).
	Deferred bool `yaml:"deferred" json:"deferred"`
}

// Instances returns how many threads of this body the scenario starts.
func (t ThreadSpec) Instances() int {
	if t.Deferred {
		return 0
	}
	if t.Count == 0 {
		return 1
	}
	return t.Count
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("jsscript", validateScript)
}

// validateScript checks that a field holds JavaScript that compiles.
func validateScript(fl validator.FieldLevel) bool {
	_, err := goja.Compile("", fl.Field().String(), false)
	return err == nil
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates a YAML scenario.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks field constraints and that the scenario fits its thread
// limit. Errors are *model.APIError with one detail per failed field.
func (sc *Scenario) Validate() error {
	var details []model.FieldError
	if err := validate.Struct(sc); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			details = append(details, model.FieldError{
				Field:   fe.Namespace(),
				Message: describe(fe),
			})
		}
	}
	if sc.MaxThreads > 0 {
		if n := sc.InitialThreads() + 1; n > sc.MaxThreads {
			details = append(details, model.FieldError{
				Field:   "Scenario.Threads",
				Message: fmt.Sprintf("starts %d threads including thread 0, max_threads is %d", n, sc.MaxThreads),
			})
		}
	}
	if len(details) > 0 {
		return model.NewValidationError("invalid scenario", details...)
	}
	return nil
}

// InitialThreads returns the number of threads spawned when the scenario
// starts, thread 0 excluded.
func (sc *Scenario) InitialThreads() int {
	n := 0
	for _, t := range sc.Threads {
		n += t.Instances()
	}
	return n
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "jsscript":
		return "is not valid JavaScript"
	case "unique":
		return "thread names must be unique"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	default:
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
}
