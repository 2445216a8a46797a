package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Resource kinds reported under "resources" in the cold-start event.
const (
	kindS3     = "s3Buckets"
	kindDynamo = "dynamoTables"
	kindSSM    = "ssmParams"
	kindBus    = "eventBuses"
)

// StartupLogger gathers what a function resolved during init and emits it as
// one structured "Cold start complete" event.
type StartupLogger struct {
	name         string
	functionName string
	region       string
	initDuration time.Duration

	// resources is keyed by kind, then by label.
	resources map[string]map[string]string
	features  map[string]bool
	config    map[string]string
}

// NewStartupLogger creates a StartupLogger for the given function
// (e.g. "gatekeeper-lambda").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:      name,
		resources: make(map[string]map[string]string),
		features:  make(map[string]bool),
		config:    make(map[string]string),
	}
}

// Identity sets the resolved function name and region.
func (s *StartupLogger) Identity(functionName, region string) *StartupLogger {
	s.functionName = functionName
	s.region = region
	return s
}

func (s *StartupLogger) resource(kind, label, name string) *StartupLogger {
	if s.resources[kind] == nil {
		s.resources[kind] = make(map[string]string)
	}
	s.resources[kind][label] = name
	return s
}

// S3Bucket records the lake bucket.
func (s *StartupLogger) S3Bucket(label, name string) *StartupLogger {
	return s.resource(kindS3, label, name)
}

// DynamoTable records the catalog table.
func (s *StartupLogger) DynamoTable(label, name string) *StartupLogger {
	return s.resource(kindDynamo, label, name)
}

// SSMParam records a parameter path. Values are never logged.
func (s *StartupLogger) SSMParam(label, path string) *StartupLogger {
	return s.resource(kindSSM, label, path)
}

// EventBus records the lifecycle event bus.
func (s *StartupLogger) EventBus(label, name string) *StartupLogger {
	return s.resource(kindBus, label, name)
}

// Feature registers a boolean feature flag (e.g. "catalog", "notifications").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long initialisation took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// Log emits a single structured INFO event with everything collected.
func (s *StartupLogger) Log() {
	evt := log.Info()

	identity := zerolog.Dict().
		Str("name", s.name).
		Str("functionName", s.functionName).
		Str("version", os.Getenv("AWS_LAMBDA_FUNCTION_VERSION")).
		Str("region", s.region).
		Str("memoryMB", os.Getenv("AWS_LAMBDA_FUNCTION_MEMORY_SIZE")).
		Str("runtime", os.Getenv("AWS_EXECUTION_ENV")).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", zerolog.GlobalLevel().String())
	evt = evt.Dict("lambda", identity)

	if len(s.resources) > 0 {
		resources := zerolog.Dict()
		for kind, m := range s.resources {
			resources = resources.Dict(kind, dictFromMap(m))
		}
		evt = evt.Dict("resources", resources)
	}

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}

	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("Cold start complete")
}

func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
