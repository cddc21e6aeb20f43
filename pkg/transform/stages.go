package transform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// These stage implementations are deliberately simplified pattern
// matching, not a real TypeScript/SFC compiler: the parser, type-checker
// and minifier are external collaborators driven through well-defined
// calls, never re-implemented in-process. Callers who need real output
// register a replacement via Pipeline.RegisterStage.

var (
	typeAnnotationRe  = regexp.MustCompile(`:\s*[A-Za-z_][\w<>\[\].,\s|&]*([,)=;{]|$)`)
	interfaceBlockRe  = regexp.MustCompile(`(?s)(?:export\s+)?interface\s+\w+\s*\{.*?\}\s*`)
	typeAliasRe       = regexp.MustCompile(`(?m)^(?:export\s+)?type\s+\w+.*?=.*?;\s*$`)
	genericParamsRe   = regexp.MustCompile(`<[A-Za-z_][\w,\s]*>(\()`)
	importSpecifierRe = regexp.MustCompile(`(?m)(?:import\s+[^'"]*?from\s+|import\s*\()\s*['"]([^'"]+)['"]`)
	preserveCommentRe = regexp.MustCompile(`/\*\s*@preserve[\s\S]*?\*/`)
	templateTagRe     = regexp.MustCompile(`\bversaNoop\s*` + "`" + `[\s\S]*?` + "`")
	blockCommentRe    = regexp.MustCompile(`/\*[\s\S]*?\*/`)
	lineCommentRe     = regexp.MustCompile(`(?m)//[^\n]*$`)
	extraSpaceRe      = regexp.MustCompile(`[ \t]{2,}`)
)

// TypeStrip removes TypeScript-only syntax: interface blocks, type alias
// statements, generic parameter lists on function calls, and inline type
// annotations. It produces plain JS.
func TypeStrip(code []byte, _ Options, inboundMap string) ([]byte, string, []string, error) {
	s := string(code)
	s = interfaceBlockRe.ReplaceAllString(s, "")
	s = typeAliasRe.ReplaceAllString(s, "")
	s = genericParamsRe.ReplaceAllString(s, "${1}")
	s = typeAnnotationRe.ReplaceAllString(s, "${1}")
	return []byte(s), inboundMap, nil, nil
}

// sfcBlockRe extracts the <template>, <script>, and <style> blocks of a
// single-file component document.
var (
	sfcTemplateRe = regexp.MustCompile(`(?s)<template[^>]*>(.*?)</template>`)
	sfcScriptRe   = regexp.MustCompile(`(?s)<script([^>]*)>(.*?)</script>`)
	sfcStyleRe    = regexp.MustCompile(`(?s)<style[^>]*>(.*?)</style>`)
)

// SFCCompile compiles a single-file component's template and script
// blocks into one JS module exporting a default component descriptor.
// The template is embedded as a string render function body; a real
// implementation would compile it to a render-function AST, but that
// belongs to the external template compiler collaborator.
func SFCCompile(code []byte, _ Options, inboundMap string) ([]byte, string, []string, error) {
	s := string(code)

	script := ""
	if m := sfcScriptRe.FindStringSubmatch(s); m != nil {
		script = strings.TrimSpace(m[2])
	}
	template := ""
	if m := sfcTemplateRe.FindStringSubmatch(s); m != nil {
		template = strings.TrimSpace(m[1])
	}

	if script == "" && template == "" {
		return nil, "", nil, fmt.Errorf("no <template> or <script> block found")
	}

	var b strings.Builder
	b.WriteString(script)
	b.WriteString("\n\nexport default {\n")
	b.WriteString("  __versaTemplate: ")
	b.WriteString(fmt.Sprintf("%q", template))
	b.WriteString(",\n};\n")

	deps := extractImportSpecifiers(script)
	return []byte(b.String()), inboundMap, deps, nil
}

func extractImportSpecifiers(code string) []string {
	matches := importSpecifierRe.FindAllStringSubmatch(code, -1)
	seen := make(map[string]struct{}, len(matches))
	var out []string
	for _, m := range matches {
		spec, _, _ := strings.Cut(m[1], "?") // strip an hmr-instrument placeholder query, if one was already added
		if _, ok := seen[spec]; ok {
			continue
		}
		seen[spec] = struct{}{}
		out = append(out, spec)
	}
	return out
}

// AliasRewriteNoop is the built-in alias-rewrite stage. It extracts
// dependency specifiers for the orchestrator to resolve and report; the
// actual specifier rewriting (consulting the Resolver) is performed by
// the orchestrator, which owns the Resolver handle the stage signature
// does not carry. This stage's job within the pipeline itself is purely
// to report deps and add a trailing ".js" to extension-less relative
// imports, which requires no resolver lookup.
func AliasRewriteNoop(code []byte, _ Options, inboundMap string) ([]byte, string, []string, error) {
	s := string(code)
	deps := extractImportSpecifiers(s)

	s = importSpecifierRe.ReplaceAllStringFunc(s, func(match string) string {
		sub := importSpecifierRe.FindStringSubmatch(match)
		spec := sub[1]
		if !strings.HasPrefix(spec, ".") {
			return match
		}
		path, query, hasQuery := strings.Cut(spec, "?")
		if hasKnownExtension(path) {
			return match
		}
		rewritten := path + ".js"
		if hasQuery {
			rewritten += "?" + query
		}
		return strings.Replace(match, spec, rewritten, 1)
	})

	return []byte(s), inboundMap, deps, nil
}

func hasKnownExtension(spec string) bool {
	for _, ext := range []string{".js", ".ts", ".tsx", ".vue", ".json", ".css"} {
		if strings.HasSuffix(spec, ext) {
			return true
		}
	}
	return false
}

// HMRInstrumentNoop appends a unique placeholder query token to every
// relative import specifier and returns the (specifier → placeholder)
// pairs encoded as "specifier=placeholder" deps entries so the caller
// (the HMR tracker, via the orchestrator) can build the SFCCacheEntry's
// hmrDeps map without this stage needing to know about that type.
func HMRInstrumentNoop(code []byte, _ Options, inboundMap string) ([]byte, string, []string, error) {
	s := string(code)
	var pairs []string

	s = importSpecifierRe.ReplaceAllStringFunc(s, func(match string) string {
		sub := importSpecifierRe.FindStringSubmatch(match)
		spec := sub[1]
		if !strings.HasPrefix(spec, ".") {
			return match
		}
		placeholder := "__hmr_placeholder_" + uuid.New().String()
		pairs = append(pairs, spec+"="+placeholder)
		return strings.Replace(match, spec, spec+"?"+placeholder, 1)
	})

	return []byte(s), inboundMap, pairs, nil
}

// StripTemplateTag removes the no-op tagged-template DSL marker
// (versaNoop`...`) some upstream passes leave behind.
func StripTemplateTag(code []byte, _ Options, inboundMap string) ([]byte, string, []string, error) {
	return []byte(templateTagRe.ReplaceAllString(string(code), "")), inboundMap, nil, nil
}

// RemovePreserveComments strips /* @preserve ... */ annotations.
func RemovePreserveComments(code []byte, _ Options, inboundMap string) ([]byte, string, []string, error) {
	return []byte(preserveCommentRe.ReplaceAllString(string(code), "")), inboundMap, nil, nil
}

// Minify produces compressed output by stripping comments and collapsing
// redundant whitespace. Real mangling/dead-code elimination belongs to
// the external minifier collaborator; this is a safe, lossless-for-JS
// default so the pipeline is runnable without one.
func Minify(code []byte, _ Options, inboundMap string) ([]byte, string, []string, error) {
	s := string(code)
	s = blockCommentRe.ReplaceAllString(s, "")
	s = lineCommentRe.ReplaceAllString(s, "")
	s = extraSpaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return []byte(s), inboundMap, nil, nil
}
