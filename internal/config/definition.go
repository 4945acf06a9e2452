package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"servicesim/internal/chaos"
	"servicesim/internal/logger"
	"servicesim/internal/rules"
	"servicesim/internal/script"

	"github.com/SOLUCIONESSYCOM/scribe"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrMissingResponseFile is returned when a response_file does not exist.
// It aborts the whole load: a definition directory that references missing
// files is an operator error.
var ErrMissingResponseFile = errors.New("response file does not exist")

// DefinitionError reports a definition file that could not be loaded.
type DefinitionError struct {
	File string
	Err  error
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("error loading definition %s: %v", e.File, e.Err)
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// Options controls how definitions are turned into calls.
type Options struct {
	Log          *scribe.Scribe
	Chaos        *chaos.Engine
	ScriptBudget time.Duration
}

// LoadDefinitions loads every definition file of dir into a registry. Hidden
// files are ignored and files are consulted in name order. A file that fails
// to load is logged and skipped; only ErrMissingResponseFile aborts the load.
func LoadDefinitions(dir string, opts Options) (*rules.Registry, error) {
	if opts.Log == nil {
		opts.Log = logger.Quiet()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading definition directory: %w", err)
	}

	var calls []*rules.Call
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			opts.Log.Debug().Str("path", path).Msg("Skipping directory in definition directory")
			continue
		}

		call, err := LoadDefinition(path, opts)
		if err != nil {
			if errors.Is(err, ErrMissingResponseFile) {
				return nil, err
			}
			opts.Log.Error().
				Str("file", path).
				AnErr("error", err).
				Msg("Error reading call definition, skipping")
			continue
		}

		opts.Log.Info().
			Str("file", path).
			Str("method", call.Method).
			Str("path", call.Path.String()).
			Int("responses", len(call.Responses)).
			Msg("Registered call")
		calls = append(calls, call)
	}

	return rules.NewRegistry(calls, rules.Env{Log: opts.Log, Chaos: opts.Chaos}), nil
}

// LoadDefinition loads a single definition file.
func LoadDefinition(path string, opts Options) (*rules.Call, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, &DefinitionError{File: path, Err: err}
	}

	call, err := buildCall(filepath.Base(path), filepath.Dir(path), doc, opts)
	if err != nil {
		if errors.Is(err, ErrMissingResponseFile) {
			return nil, err
		}
		return nil, &DefinitionError{File: path, Err: err}
	}
	return call, nil
}

func buildCall(name, dir string, doc *document, opts Options) (*rules.Call, error) {
	if !doc.hasSection("call") {
		return nil, errors.New("no [call] section")
	}

	path, err := require(doc, "call", "path")
	if err != nil {
		return nil, err
	}
	method, err := require(doc, "call", "method")
	if err != nil {
		return nil, err
	}

	timeout, err := floatOption(doc, "call", "timeout", "0")
	if err != nil {
		return nil, err
	}
	var probability float64
	if timeout != 0 {
		raw, err := require(doc, "call", "timeout_perc")
		if err != nil {
			return nil, err
		}
		if probability, err = parseFloat("call", "timeout_perc", raw); err != nil {
			return nil, err
		}
	}

	rawNames, err := require(doc, "call", "responses")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, n := range strings.Split(rawNames, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		return nil, errors.New("[call] lists no responses")
	}

	responses := make([]*rules.Response, 0, len(names))
	for _, n := range names {
		resp, err := buildResponse(n, dir, doc, opts)
		if err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}

	return rules.NewCall(name, strings.TrimSpace(method), path, responses, timeout, probability)
}

// buildResponse reads one response section. The response source is the first
// of response, response_command, response_file and response_python that is
// set, in that order.
func buildResponse(name, dir string, doc *document, opts Options) (*rules.Response, error) {
	if !doc.hasSection(name) {
		return nil, fmt.Errorf("response section [%s] not found", name)
	}

	contentType := "text/plain"
	if v, ok := doc.get(name, "content_type"); ok {
		contentType = v
	}

	var generation rules.Generation
	if v, ok := doc.get(name, "response"); ok {
		generation = rules.Static{Body: v}
	} else if v, ok := doc.get(name, "response_command"); ok {
		generation = rules.Command{Template: v, Dir: dir}
	} else if v, ok := doc.get(name, "response_file"); ok {
		file := filepath.Join(dir, v)
		data, err := os.ReadFile(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrMissingResponseFile, file)
			}
			return nil, fmt.Errorf("[%s] error reading response_file: %w", name, err)
		}
		generation = rules.Static{Body: string(data)}
	} else if v, ok := doc.get(name, "response_python"); ok {
		program, err := script.Compile(v, opts.ScriptBudget)
		if err != nil {
			return nil, fmt.Errorf("[%s] error compiling response_python: %w", name, err)
		}
		generation = rules.Scripted{Program: program, Dir: dir}
	} else {
		return nil, fmt.Errorf("[%s] has none of response, response_command, response_file, response_python", name)
	}

	rawStatus, err := require(doc, name, "status")
	if err != nil {
		return nil, err
	}
	status, err := strconv.Atoi(strings.TrimSpace(rawStatus))
	if err != nil {
		return nil, fmt.Errorf("[%s] status: %w", name, err)
	}

	schema, err := responseSchema(name, dir, doc)
	if err != nil {
		return nil, err
	}

	var predicates []rules.Predicate
	for _, key := range doc.items(name) {
		if !strings.HasPrefix(key, "v_") {
			continue
		}
		value, _ := doc.get(name, key)
		predicates = append(predicates, rules.ParsePredicate(key[2:], value))
	}

	return &rules.Response{
		Name:        name,
		Status:      status,
		ContentType: contentType,
		Predicates:  predicates,
		Schema:      schema,
		Generation:  generation,
	}, nil
}

// responseSchema compiles the optional schema or schema_file guard.
func responseSchema(name, dir string, doc *document) (*jsonschema.Schema, error) {
	text, ok := doc.get(name, "schema")
	if !ok {
		file, ok := doc.get(name, "schema_file")
		if !ok {
			return nil, nil
		}
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			return nil, fmt.Errorf("[%s] error reading schema_file: %w", name, err)
		}
		text = string(data)
	}

	schema, err := compileSchema(text)
	if err != nil {
		return nil, fmt.Errorf("[%s] %w", name, err)
	}
	return schema, nil
}

// compileSchema compiles a JSON schema
func compileSchema(schemaStr string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()

	schemaData, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaStr))
	if err != nil {
		return nil, fmt.Errorf("error parsing schema JSON: %w", err)
	}

	if err := compiler.AddResource("schema.json", schemaData); err != nil {
		return nil, fmt.Errorf("error adding schema resource: %w", err)
	}

	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("error compiling schema: %w", err)
	}

	return schema, nil
}

func require(doc *document, sectionName, key string) (string, error) {
	v, ok := doc.get(sectionName, key)
	if !ok {
		return "", fmt.Errorf("[%s] missing required option %q", sectionName, key)
	}
	return v, nil
}

func floatOption(doc *document, sectionName, key, fallback string) (float64, error) {
	v, ok := doc.get(sectionName, key)
	if !ok {
		v = fallback
	}
	return parseFloat(sectionName, key, v)
}

func parseFloat(sectionName, key, raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("[%s] %s: %w", sectionName, key, err)
	}
	return f, nil
}
