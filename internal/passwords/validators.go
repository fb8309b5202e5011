package passwords

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
)

// Validator names accepted in the configuration.
const (
	UserAttributeSimilarity = "user_attribute_similarity"
	MinimumLength           = "minimum_length"
	CommonPassword          = "common"
	NumericPassword         = "numeric"
)

const (
	defaultMinLength     = 8
	defaultMaxSimilarity = 0.7
)

var defaultUserAttributes = []string{"username", "first_name", "last_name", "email"}

var attributeVerboseNames = map[string]string{
	"username":   "username",
	"first_name": "first name",
	"last_name":  "last name",
	"email":      "email address",
}

//go:embed common_passwords.txt
var commonPasswordsFile string

// nonWord splits on anything that is not a Unicode letter, digit or underscore.
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// ValidatorConfig selects one validator and its options. Zero options use defaults.
type ValidatorConfig struct {
	Name           string
	MinLength      int
	MaxSimilarity  float64
	UserAttributes []string
}

// UserAttributes are the personal details a password must not resemble,
// keyed by attribute name (username, first_name, last_name, email).
type UserAttributes map[string]string

// ValidationError collects every failed password rule.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, " ")
}

// Validator checks one password rule.
type Validator interface {
	Validate(password string, user UserAttributes) error
	HelpText() string
}

// ValidatorNames lists every supported validator.
func ValidatorNames() []string {
	return []string{UserAttributeSimilarity, MinimumLength, CommonPassword, NumericPassword}
}

// Validators runs the configured rules in order.
type Validators []Validator

// NewValidators builds validators from configuration.
func NewValidators(cfgs []ValidatorConfig) (Validators, error) {
	out := make(Validators, 0, len(cfgs))
	for _, cfg := range cfgs {
		switch cfg.Name {
		case UserAttributeSimilarity:
			v := similarityValidator{attributes: cfg.UserAttributes, maxSimilarity: cfg.MaxSimilarity}
			if len(v.attributes) == 0 {
				v.attributes = defaultUserAttributes
			}
			if v.maxSimilarity <= 0 {
				v.maxSimilarity = defaultMaxSimilarity
			}
			out = append(out, v)
		case MinimumLength:
			v := minimumLengthValidator{minLength: cfg.MinLength}
			if v.minLength <= 0 {
				v.minLength = defaultMinLength
			}
			out = append(out, v)
		case CommonPassword:
			out = append(out, newCommonPasswordValidator(commonPasswordsFile))
		case NumericPassword:
			out = append(out, numericValidator{})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownValidator, cfg.Name)
		}
	}
	return out, nil
}

// Validate returns a *ValidationError listing every failure, or nil.
func (vs Validators) Validate(password string, user UserAttributes) error {
	var messages []string
	for _, v := range vs {
		if err := v.Validate(password, user); err != nil {
			messages = append(messages, err.Error())
		}
	}
	if len(messages) == 0 {
		return nil
	}
	return &ValidationError{Messages: messages}
}

// HelpTexts describes every rule for display next to password fields.
func (vs Validators) HelpTexts() []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.HelpText())
	}
	return out
}

type similarityValidator struct {
	attributes    []string
	maxSimilarity float64
}

func (v similarityValidator) Validate(password string, user UserAttributes) error {
	if user == nil {
		return nil
	}
	lowered := strings.ToLower(password)
	for _, attr := range v.attributes {
		value := user[attr]
		if value == "" {
			continue
		}
		parts := append(nonWord.Split(value, -1), value)
		for _, part := range parts {
			if part == "" {
				continue
			}
			matcher := difflib.NewMatcher(chars(lowered), chars(strings.ToLower(part)))
			if matcher.QuickRatio() >= v.maxSimilarity {
				name := attributeVerboseNames[attr]
				if name == "" {
					name = strings.ReplaceAll(attr, "_", " ")
				}
				return fmt.Errorf("The password is too similar to the %s.", name)
			}
		}
	}
	return nil
}

func (v similarityValidator) HelpText() string {
	return "Your password can't be too similar to your other personal information."
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

type minimumLengthValidator struct {
	minLength int
}

func (v minimumLengthValidator) Validate(password string, _ UserAttributes) error {
	if len([]rune(password)) >= v.minLength {
		return nil
	}
	return fmt.Errorf("This password is too short. It must contain at least %d %s.", v.minLength, plural(v.minLength, "character"))
}

func (v minimumLengthValidator) HelpText() string {
	return fmt.Sprintf("Your password must contain at least %d %s.", v.minLength, plural(v.minLength, "character"))
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

type commonPasswordValidator struct {
	passwords map[string]struct{}
}

func newCommonPasswordValidator(list string) commonPasswordValidator {
	v := commonPasswordValidator{passwords: make(map[string]struct{})}
	scanner := bufio.NewScanner(strings.NewReader(list))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		v.passwords[strings.ToLower(line)] = struct{}{}
	}
	return v
}

func (v commonPasswordValidator) Validate(password string, _ UserAttributes) error {
	if _, ok := v.passwords[strings.ToLower(strings.TrimSpace(password))]; ok {
		return errors.New("This password is too common.")
	}
	return nil
}

func (v commonPasswordValidator) HelpText() string {
	return "Your password can't be a commonly used password."
}

type numericValidator struct{}

func (numericValidator) Validate(password string, _ UserAttributes) error {
	if password == "" {
		return nil
	}
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return nil
		}
	}
	return errors.New("This password is entirely numeric.")
}

func (numericValidator) HelpText() string {
	return "Your password can't be entirely numeric."
}
