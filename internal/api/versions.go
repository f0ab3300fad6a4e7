package api

// The Batch service selects behaviour with an api-version query parameter
// rather than versioned paths. Older versions verify without tracking a
// lease; the latest version runs the full acquire/renew/release lifecycle.
const (
	ApiVersionParameter = "api-version"

	ApiVersionMay2017    = "2017-05-01.5.0"
	ApiVersionJune2017   = "2017-06-01.5.1"
	ApiVersionSept2017   = "2017-09-01.6.0"
	ApiVersionMarch2018  = "2018-03-01.6.1"
	ApiVersionAugust2018 = "2018-08-01.7.0"
	ApiVersionLatest     = "9999-09-09.99.99"
)

type requestKind int

const (
	kindApproveV1 requestKind = iota
	kindApproveV2
	kindAcquire
)

var apiVersionKinds = map[string]requestKind{
	ApiVersionMay2017:    kindApproveV1,
	ApiVersionJune2017:   kindApproveV1,
	ApiVersionSept2017:   kindApproveV2,
	ApiVersionMarch2018:  kindApproveV2,
	ApiVersionAugust2018: kindApproveV2,
	ApiVersionLatest:     kindAcquire,
}

// IsValidApiVersion reports whether the given api-version is one the server
// understands.
func IsValidApiVersion(apiVersion string) bool {
	_, ok := apiVersionKinds[apiVersion]
	return ok
}
