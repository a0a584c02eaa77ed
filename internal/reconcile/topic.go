package reconcile

import (
	"path/filepath"
	"strings"
)

var topicKeyOverrides = map[string]string{
	"DEUTSCHE LITERATUR MONOGRAPHIEN": "de-lit-monographien",
	"DEUTSCHE LITERATUR TEXTE":        "de-lit-texte",
}

var transliterate = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

// TopicFromFilename turns "Philosophie.docx" into the display topic "PHILOSOPHIE"
func TopicFromFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToUpper(strings.TrimSpace(base))
}

// TopicKey derives the stable slug used in composite ids. Hyphenated topic
// names keep only the part before the first hyphen.
func TopicKey(topic string) string {
	topic = strings.TrimSpace(topic)
	if key, ok := topicKeyOverrides[strings.ToUpper(topic)]; ok {
		return key
	}
	key := strings.ToLower(topic)
	key = strings.SplitN(key, "-", 2)[0]
	return transliterate.Replace(key)
}

// BaseTopic drops the suffix of a hyphenated topic, so "ERSTAUSGABEN-A"
// becomes "ERSTAUSGABEN".
func BaseTopic(topic string) string {
	return strings.TrimSpace(strings.SplitN(topic, "-", 2)[0])
}
