package repository

import (
	"bytes"
	"text/template"

	"golang-rotation/internal/dto"
)

const scanNarrativeTemplate = `You are a market analyst. Summarize today's momentum scan in 3-5 short sentences for a retail investor. Be factual, do not give financial advice, do not invent data.

Scan time: {{.ScanTime.Format "2006-01-02"}}
Market index: {{.MarketIndex}} (bullish regime: {{.MarketBullish}})

Top picks:
{{- range .TopPicks}}
- {{.Symbol}}: price {{printf "%.2f" .Price}}, momentum {{printf "%.3f" .MomentumScore}}, model score {{printf "%.3f" .Score}}
{{- end}}
{{- if not .TopPicks}}
(none qualified today)
{{- end}}

Respond with plain text only.`

var scanNarrativeTmpl = template.Must(template.New("scan_narrative").Parse(scanNarrativeTemplate))

func (r *geminiAIRepository) promptScanNarrative(report *dto.ScanReport) (string, error) {
	var buf bytes.Buffer
	if err := scanNarrativeTmpl.Execute(&buf, report); err != nil {
		return "", err
	}
	return buf.String(), nil
}
