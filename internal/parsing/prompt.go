package parsing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mvc24/bibliopa/internal/models"
)

const entrySystemPrompt = `You are a cataloging assistant for an antiquarian bookshop. The entries were typed by one cataloguer over several decades using RAK (Regeln für die alphabetische Katalogisierung) as the base standard. Expect inconsistent punctuation, accents used as apostrophes, varying abbreviation styles and typos.

Return exactly one JSON object with these fields:

{
  "title": "string",
  "subtitle": "string or null",
  "authors": [{"display_name": "Churchill, Winston C.", "family_name": "Churchill", "given_names": "Winston C.", "name_particles": null, "single_name": null}],
  "editors": [ /* same person structure */ ],
  "contributors": [ /* same person structure */ ],
  "publisher": "string or null",
  "place_of_publication": "string or null",
  "publication_year": integer or null,
  "edition": "string or null",
  "pages": integer or null,
  "format_original": "string or null",
  "format_expanded": "string or null",
  "condition": "string or null",
  "copies": integer or null,
  "illustrations": "string or null",
  "packaging": "string or null",
  "isbn": "string or null",
  "price": integer or null,
  "topic": "string",
  "is_translation": boolean,
  "original_language": "string or null",
  "translator": person object or null,
  "is_multivolume": boolean,
  "series_title": "string or null",
  "total_volumes": integer or null,
  "volumes": [{"volume_number": integer, "volume_title": "string", "pages": integer, "notes": "string"}],
  "administrative": {
    "original_entry": "the complete input text",
    "parsing_confidence": "high|medium|low",
    "needs_review": boolean
  }
}

Rules:
- Use the given PRICE and TOPIC values unchanged.
- Expand German bibliographic abbreviations in format_expanded: EA=Erstausgabe, OLn.=Original-Leinen, OU=Original-Umschlag, OBrosch.=Original-Broschur, TB=Taschenbuch.
- "2 Ex." means copies=2.
- Names are usually written surname first, followed by given names.
- Place of publication comes before the publisher.
- Numbered volumes (1. Band, 2. Band) make a multivolume work.
- Cross references such as "Siehe ..." get parsing_confidence "low" and needs_review true.
- Use null for absent fields. Do not guess.
- Preserve all German text exactly as written.

Return only the JSON object, without markdown fences or commentary.`

// EntryPrompt builds the user message for one consolidated record
func EntryPrompt(rec models.ConsolidatedRecord) string {
	price := "null"
	if rec.Price != nil {
		price = fmt.Sprintf("%d", *rec.Price)
	}
	return fmt.Sprintf("Parse this bibliography entry into structured JSON.\n\nPRICE: %s\nTOPIC: %s\n\nENTRY TEXT: %s",
		price, rec.Topic, strings.TrimSpace(rec.Text))
}

const dedupSystemPrompt = `You are a person deduplication assistant. You receive a JSON array of person mentions taken from book records. Identify mentions that refer to the same person and give them the same unified_id.

unified_id format: lowercase and underscore separated, family name then given names with middle names reduced to an initial, e.g. "Adorno, Theodor W." becomes "adorno_theodor_w". Organisations and single names use their normalised form.

Treat as the same person: identical surnames whose given names differ only in abbreviation (Theodor / Th.), capitalisation, punctuation, spacing, full versus abbreviated middle names, or name particles (von, van, de).

If you are unsure whether two mentions are the same person, give them different unified_ids. If a mention has no usable name, or you cannot determine an id, set unified_id to "oops".

Return the full input array in the same order. Every element keeps all of its input fields unchanged and gains a unified_id. Return only the JSON array, without markdown fences or commentary.`

// DedupPrompt builds the user message for one batch of person mentions
func DedupPrompt(batch []models.PersonMention) (string, error) {
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal mentions: %w", err)
	}
	return "Mentions to deduplicate (return all of them with unified_id set):\n" + string(data), nil
}

const splitSystemPrompt = `You are a person name parsing assistant. Each input mention names several people in one string, joined by "und" or "u.", for example "Müller und Schmidt" or "Grimm, Jacob u. Wilhelm".

Split every mention into its separate people. Names are usually written surname first. A shared surname applies to every given name it is joined with ("Grimm, Jacob u. Wilhelm" is Jacob Grimm and Wilhelm Grimm).

For each input mention return one object:

{
  "source": the input mention, copied unchanged,
  "people": [{"display_name": "Müller", "family_name": "Müller", "given_names": null, "name_particles": null, "single_name": null}, ...]
}

If the string is a single name that only contains "und" (a firm such as "Müller und Söhne", or a title), return it as the only element of "people".

Return a JSON array with one object per input mention, in input order. Return only the JSON array, without markdown fences or commentary.`

// SplitPrompt builds the user message for one batch of multi-person mentions
func SplitPrompt(batch []models.PersonMention) (string, error) {
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal mentions: %w", err)
	}
	return "Mentions to split into separate people:\n" + string(data), nil
}
