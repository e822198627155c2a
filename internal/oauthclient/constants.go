package oauthclient

// These are the public installed-app OAuth client identifiers every client
// of the cloudcode-pa upstream uses; they are not secrets unique to any
// operator of this proxy. Values verified against the upstream's own
// accepted client id (grounded on the teacher's internal/auth/antigravity
// constants.go, which observes the identical value).
const (
	ClientID     = "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com"
	ClientSecret = "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"
)

const (
	TokenEndpoint    = "https://oauth2.googleapis.com/token"
	AuthEndpoint     = "https://accounts.google.com/o/oauth2/v2/auth"
	UserInfoEndpoint = "https://www.googleapis.com/oauth2/v1/userinfo?alt=json"
)

const (
	APIEndpoint  = "https://cloudcode-pa.googleapis.com"
	APIVersion   = "v1internal"
	APIUserAgent = "google-api-nodejs-client/9.15.1"
	APIClient    = "google-cloud-sdk vscode_cloudshelleditor/0.1"

	// ClientMetadata is sent verbatim on loadCodeAssist/onboarding calls; the
	// upstream keys quota and tier detection off this blob.
	ClientMetadata = `{"ideType":"IDE_UNSPECIFIED","platform":"PLATFORM_UNSPECIFIED","pluginType":"GEMINI"}`

	// FallbackProjectID is substituted when metadata fetch fails, so a
	// request is never blocked purely on a transient metadata error.
	FallbackProjectID = "bamboo-precept-lgxtn"
)

// Scopes requested during the authorization-code exchange. Onboarding itself
// is out of scope for this module (see SPEC_FULL.md section 1); these are
// retained because the refresh flow reuses the same oauth2.Config shape.
var Scopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}
