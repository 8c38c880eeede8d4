package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// RootName prefixes every logger the integration creates.
const RootName = "marketplace"

// ComponentName returns the dotted logger name for a component, for example
// "marketplace.poller".
func ComponentName(component string) string {
	component = strings.Trim(strings.TrimSpace(component), ".")
	if component == "" {
		return RootName
	}
	if component == RootName || strings.HasPrefix(component, RootName+".") {
		return component
	}
	return RootName + "." + component
}

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ResolveComponent resolves the logger for one integration component.
func ResolveComponent(component string, provider glog.LoggerProvider, logger glog.Logger) glog.Logger {
	_, resolved := Resolve(ComponentName(component), provider, logger)
	return resolved
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// ResolveForJob resolves the poll worker logger and returns it together with
// its go-job adapters.
func ResolveForJob(provider glog.LoggerProvider, logger glog.Logger) (glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(ComponentName("jobs"), provider, logger)
	return resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
