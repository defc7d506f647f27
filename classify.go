package resilience

import (
	"fmt"
	"strings"
)

// Category is the coarse failure category a classified error falls into.
type Category string

const (
	CategoryNetwork        Category = "NETWORK"
	CategoryTimeout        Category = "TIMEOUT"
	CategoryRateLimit      Category = "RATE_LIMIT"
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryValidation     Category = "VALIDATION"
	CategoryResource       Category = "RESOURCE"
	CategoryInternal       Category = "INTERNAL"
	CategoryExternal       Category = "EXTERNAL"
	CategoryUnknown        Category = "UNKNOWN"
)

// Severity is how serious a classified failure is.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Classification is the immutable record classify() produces for a failure.
type Classification struct {
	Category         Category
	Severity         Severity
	Retryable        bool
	FallbackEligible bool
	RequiresRecovery bool
}

// Classified lets a caller attach a pre-built classification to their own
// error type; Classify short-circuits to it instead of substring-matching
// the error text. This keeps opaque third-party errors working through the
// same substring path while giving well-typed internal errors an exact
// answer. Grounded in the teacher's EnhancedError, which already carries a
// precomputed category/severity alongside the message.
type Classified interface {
	Classified() (Classification, bool)
}

type classifyRule struct {
	substrings []string
	nameHint   string // matched against the error's Name() (or fmt.Sprintf("%T", err)) as well as the message
	result     Classification
}

// classifyRules is evaluated in order; the first rule whose substrings
// match the lowercased error message wins. Order is significant and fixed
// by the spec — do not reorder or sort these.
var classifyRules = []classifyRule{
	{
		substrings: []string{"network", "econnrefused", "enotfound", "etimedout"},
		result: Classification{
			Category: CategoryNetwork, Severity: SeverityMedium,
			Retryable: true, FallbackEligible: true,
		},
	},
	{
		substrings: []string{"timeout", "timed out"},
		nameHint:   "timeout",
		result: Classification{
			Category: CategoryTimeout, Severity: SeverityMedium,
			Retryable: true, FallbackEligible: true,
		},
	},
	{
		substrings: []string{"rate limit", "too many requests", "429"},
		result: Classification{
			Category: CategoryRateLimit, Severity: SeverityLow,
			Retryable: true, FallbackEligible: false,
		},
	},
	{
		substrings: []string{"unauthorized", "forbidden", "401", "403", "authentication"},
		result: Classification{
			Category: CategoryAuthentication, Severity: SeverityHigh,
			Retryable: false, FallbackEligible: false, RequiresRecovery: true,
		},
	},
	{
		substrings: []string{"validation", "invalid", "bad request", "400"},
		result: Classification{
			Category: CategoryValidation, Severity: SeverityLow,
			Retryable: false, FallbackEligible: false,
		},
	},
	{
		substrings: []string{"not found", "404", "resource", "memory", "disk"},
		result: Classification{
			Category: CategoryResource, Severity: SeverityMedium,
			Retryable: false, FallbackEligible: true,
		},
	},
	{
		substrings: []string{"internal", "500", "server error"},
		result: Classification{
			Category: CategoryInternal, Severity: SeverityHigh,
			Retryable: true, FallbackEligible: true, RequiresRecovery: true,
		},
	},
	{
		substrings: []string{"external", "third party", "api error"},
		result: Classification{
			Category: CategoryExternal, Severity: SeverityMedium,
			Retryable: true, FallbackEligible: true,
		},
	},
}

var defaultClassification = Classification{
	Category: CategoryUnknown, Severity: SeverityMedium,
	Retryable: true, FallbackEligible: true,
}

// Classify maps an error into a Classification. It is a pure function of
// the error's message (and, for rule 2, its Name() method or, lacking one,
// its dynamic type name): the same
// error text always classifies the same way.
func Classify(err error) Classification {
	if err == nil {
		return defaultClassification
	}
	if c, ok := err.(Classified); ok {
		if classification, has := c.Classified(); has {
			return classification
		}
	}

	msg := strings.ToLower(err.Error())
	typeName := strings.ToLower(typeNameOf(err))

	for _, rule := range classifyRules {
		for _, s := range rule.substrings {
			if strings.Contains(msg, s) {
				return rule.result
			}
		}
		if rule.nameHint != "" && strings.Contains(typeName, rule.nameHint) {
			return rule.result
		}
	}
	return defaultClassification
}

func typeNameOf(err error) string {
	type named interface{ Name() string }
	if n, ok := err.(named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", err)
}
