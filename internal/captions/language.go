package captions

import "golang.org/x/text/language"

// NormalizeLanguage reduces a client-supplied language hint ("en-US",
// "pt-BR") to the base ISO-639 code engines expect. Unparseable
// hints pass through unchanged so the engine can still auto-detect.
func NormalizeLanguage(hint string) string {
	if hint == "" {
		return ""
	}
	tag, err := language.Parse(hint)
	if err != nil {
		return hint
	}
	base, conf := tag.Base()
	if conf == language.No {
		return hint
	}
	return base.String()
}
