package portable

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/sathovsepyan/ctfd-portable-challenges-plugin/internal/domain"
)

// ManifestName is the manifest file expected at the root of an archive.
const ManifestName = "challenges.yaml"

// FilesDir is where exported archives keep attachments.
const FilesDir = "files"

// ChallengeSpec is one document of a manifest.
type ChallengeSpec struct {
	Name        string     `yaml:"name" validate:"required,notblank"`
	Description *string    `yaml:"description" validate:"required"`
	Value       *int       `yaml:"value" validate:"required"`
	Category    *string    `yaml:"category" validate:"required"`
	Type        string     `yaml:"type,omitempty" validate:"omitempty,oneof=standard dynamic"`
	Minimum     *int       `yaml:"minimum,omitempty" validate:"required_if=Type dynamic"`
	Decay       *int       `yaml:"decay,omitempty" validate:"required_if=Type dynamic"`
	Flags       []FlagSpec `yaml:"flags" validate:"required,dive"`
	Tags        []string   `yaml:"tags,omitempty"`
	Files       []string   `yaml:"files,omitempty"`
}

type FlagSpec struct {
	Flag *string `yaml:"flag" validate:"required"`
	Type string  `yaml:"type,omitempty"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeManifest reads every non-empty document of a manifest stream.
func DecodeManifest(r io.Reader) ([]ChallengeSpec, error) {
	dec := yaml.NewDecoder(r)

	var specs []ChallengeSpec
	for doc := 1; ; doc++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: document %d: %v", ErrInvalidManifest, doc, err)
		}
		if isEmptyDocument(&node) {
			continue
		}

		var spec ChallengeSpec
		if err := node.Decode(&spec); err != nil {
			return nil, fmt.Errorf("%w: document %d: %v", ErrInvalidManifest, doc, err)
		}
		specs = append(specs, spec)
	}

	return specs, nil
}

func isEmptyDocument(node *yaml.Node) bool {
	if len(node.Content) == 0 {
		return true
	}
	root := node.Content[0]
	return root.Kind == yaml.ScalarNode && root.Tag == "!!null"
}

// EncodeManifest writes specs as a multi-document stream.
func EncodeManifest(w io.Writer, specs []ChallengeSpec) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	for _, spec := range specs {
		if err := enc.Encode(spec); err != nil {
			return fmt.Errorf("failed to encode %q: %w", spec.Name, err)
		}
	}
	return enc.Close()
}

// problems describes validation failures of spec in the manifest's own vocabulary.
func problems(v *validator.Validate, spec ChallengeSpec, doc int) []string {
	err := v.Struct(spec)
	if err == nil {
		return nil
	}

	label := fmt.Sprintf("challenge %d", doc)
	if name := strings.TrimSpace(spec.Name); name != "" {
		label = fmt.Sprintf("challenge %q", name)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{fmt.Sprintf("%s: %v", label, err)}
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "ChallengeSpec.")
		switch fe.Tag() {
		case "required", "required_if":
			out = append(out, fmt.Sprintf("%s: missing field '%s'", label, field))
		case "notblank":
			out = append(out, fmt.Sprintf("%s: field '%s' is blank", label, field))
		case "oneof":
			out = append(out, fmt.Sprintf("%s: %s %q must be one of: %s", label, field, fe.Value(), fe.Param()))
		default:
			out = append(out, fmt.Sprintf("%s: invalid field '%s'", label, field))
		}
	}
	return out
}

func specFromChallenge(c domain.Challenge, files []string) ChallengeSpec {
	description := c.Description
	value := c.Value
	category := c.Category

	spec := ChallengeSpec{
		Name:        c.Name,
		Description: &description,
		Value:       &value,
		Category:    &category,
		Type:        string(c.Type),
		Tags:        c.Tags,
		Files:       files,
	}
	if c.Type == domain.TypeDynamic {
		minimum, decay := c.Minimum, c.Decay
		spec.Minimum = &minimum
		spec.Decay = &decay
	}
	for _, f := range c.Flags {
		content := f.Content
		spec.Flags = append(spec.Flags, FlagSpec{Flag: &content, Type: f.Type})
	}
	return spec
}
