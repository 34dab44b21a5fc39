package translate

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mazrean/splunkmcp/internal/metadata"
)

// Queries emitted by the default rules
const (
	AuthenticationQuery    = `| tstats count from datamodel=Authentication.Authentication where Authentication.action="failure" earliest=-24h by Authentication.user`
	FailedLoginFallback    = `search index=_internal "failed login" | stats count`
	EndpointProcessQuery   = `| tstats count from datamodel=Endpoint.Processes by Processes.process_name`
	EndpointIndexFallback  = `search index=endpoint process_name=* | stats count by process_name`
	failedLoginIndexFormat = `search index=(%s) "failed login" earliest=-24h | stats count by user`
)

var defaultRules = []Rule{
	{
		Name:  "failed-login",
		Match: ContainsAny("failed login", "login failure"),
		Build: buildFailedLogin,
	},
	{
		Name:  "process",
		Match: ContainsAny("process"),
		Build: buildProcess,
	},
}

// DefaultRules returns a copy of the built-in rules in evaluation order
func DefaultRules() []Rule {
	return slices.Clone(defaultRules)
}

func buildFailedLogin(snapshot *metadata.Snapshot) string {
	if snapshot.HasDataModel("Authentication") {
		return AuthenticationQuery
	}

	var authIndexes []string
	for _, index := range snapshot.Indexes {
		lower := strings.ToLower(index)
		if strings.Contains(lower, "auth") || strings.Contains(lower, "winevent") {
			authIndexes = append(authIndexes, index)
		}
	}
	if len(authIndexes) > 0 {
		return fmt.Sprintf(failedLoginIndexFormat, strings.Join(authIndexes, " OR "))
	}

	return FailedLoginFallback
}

func buildProcess(snapshot *metadata.Snapshot) string {
	if snapshot.HasDataModel("Endpoint") {
		return EndpointProcessQuery
	}

	return EndpointIndexFallback
}
