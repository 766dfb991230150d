package channel

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/callsink/callsink-go/contracts"
)

const (
	schemePlaintext = "grpc"
	schemeSecure    = "grpcs"
)

// Target is the parsed form of a `grpc://host:port/Service/method` address.
type Target struct {
	Address string // host:port
	Service string
	Method  string
	Secure  bool
}

// FullMethod returns the gRPC method path for the configured method.
func (t Target) FullMethod() string {
	return t.MethodPath(t.Method)
}

// MethodPath returns the gRPC method path for another method on the same
// service.
func (t Target) MethodPath(method string) string {
	return "/" + t.Service + "/" + method
}

func (t Target) String() string {
	scheme := schemePlaintext
	if t.Secure {
		scheme = schemeSecure
	}
	return scheme + "://" + t.Address + t.FullMethod()
}

// ParseTarget validates and splits a raw target URL. Malformed targets are a
// definition-time configuration error, never retried.
func ParseTarget(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, &contracts.ConfigError{Option: "url", Reason: "not a valid URL", Err: err}
	}

	var secure bool
	switch u.Scheme {
	case schemePlaintext:
		secure = false
	case schemeSecure:
		secure = true
	default:
		return Target{}, &contracts.ConfigError{
			Option: "url",
			Reason: fmt.Sprintf("scheme must be %q or %q, got %q", schemePlaintext, schemeSecure, u.Scheme),
		}
	}

	if u.Host == "" {
		return Target{}, &contracts.ConfigError{Option: "url", Reason: "missing host address"}
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Target{}, &contracts.ConfigError{
			Option: "url",
			Reason: "path must be /<serviceName>/<methodName>",
		}
	}

	return Target{
		Address: u.Host,
		Service: parts[0],
		Method:  parts[1],
		Secure:  secure,
	}, nil
}
