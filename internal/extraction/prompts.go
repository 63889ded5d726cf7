package extraction

import (
	"fmt"
	"strings"

	"github.com/stephdmurray-sys/nomee-sub001/internal/taxonomy"
)

// SourceTypes are the accepted values for "sourceType".
var SourceTypes = []string{"linkedin", "email", "slack", "text_message", "performance_review", "other"}

const ocrPrompt = `Transcribe all text visible in this screenshot exactly as written.
Keep line breaks. Do not describe the image, add commentary or translate.
If there is no readable text, respond with an empty message.`

// fieldsPrompt is built once from the vocabulary so the model only sees
// labels it is allowed to return.
var fieldsPrompt = fmt.Sprintf(`You extract professional praise from transcribed screenshots.

Respond with a JSON object containing:
- "excerpt": the praise itself, verbatim, without greetings or signatures
- "giverName": the person giving the praise, or "Not specified"
- "giverCompany": their company, or "Not specified"
- "giverRole": their job title, or "Not specified"
- "sourceType": one of %s
- "approximateDate": the date shown, as written, or ""
- "traits": up to 3 traits demonstrated, chosen only from: %s
- "confidence": your confidence in this extraction from 0.0 to 1.0

Respond ONLY with the JSON object, no additional text.`,
	strings.Join(SourceTypes, ", "),
	strings.Join(taxonomy.Traits.Labels(), ", "))
