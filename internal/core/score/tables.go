package score

// Risk weight tables. Weights are tuned for recon output (URL lists,
// endpoint dumps, log extracts); unmapped keywords fall back to baseline 1

// KeywordWeights maps dictionary keywords to their risk contribution
var KeywordWeights = map[string]int{
	"apikey": 10, "api_key": 10, "secret": 10, "credential": 10,
	"password": 9, "passwd": 9, "token": 9, "access_token": 9,
	"auth": 8, "authorization": 8, "admin": 8, "login": 8,
	"private": 7, "internal": 7, "backup": 7, "config": 7,
	"database": 6, "db": 6, "endpoint": 6, "callback": 6,
	"debug": 5, "dev": 5, "staging": 5, "redirect": 5,
	"api": 3, "key": 3,
}

// ExtensionRisk maps file-extension suffixes to their risk contribution.
// Static asset extensions sit at the bottom so they wash out
var ExtensionRisk = map[string]int{
	".env": 10, ".pem": 10, ".key": 10,
	".sql": 9, ".bak": 9, ".old": 9, ".dump": 9,
	".config": 8, ".cfg": 8, ".ini": 8, ".yml": 7, ".yaml": 7,
	".php": 7, ".asp": 7, ".aspx": 7, ".jsp": 7,
	".json": 5, ".xml": 5, ".log": 4,
	".js": 3, ".css": 2, ".html": 2, ".txt": 1, ".md": 1,
}

// ParamSensitivity maps query-parameter names to their risk contribution
var ParamSensitivity = map[string]int{
	"password": 10, "passwd": 10, "secret": 10, "token": 9,
	"api_key": 9, "apikey": 9, "key": 8, "auth": 8,
	"cmd": 8, "exec": 8,
	"redirect": 7, "redirect_uri": 7, "callback": 7, "return_url": 7,
	"next": 6, "url": 6, "file": 6, "path": 6,
	"query": 5, "search": 4,
	"id": 3, "page": 2, "sort": 1, "limit": 1,
}

// Endpoint heuristic patterns, matched as substrings of the lowercased record
var (
	adminPatterns = []string{
		"/admin", "/wp-admin", "/administrator", "/manager",
		"/dashboard", "/panel", "/cpanel", "/phpmyadmin",
	}
	apiPatterns = []string{
		"/api/", "/v1/", "/v2/", "/v3/", "/graphql", "/rest/", "/rpc/", "/oauth",
	}
	backupExtensions = []string{
		".bak", ".old", ".sql", ".dump", ".gz", ".tar", ".zip", ".sql.gz", ".backup",
	}
	devPatterns = []string{
		"/staging", "/dev", "/test", "/debug", "/beta", "/sandbox", "/internal",
	}
)
