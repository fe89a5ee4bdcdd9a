package httpapi

import (
	"bytes"
	"html/template"

	"github.com/sourcequal/codequal/internal/model"
)

// reportTemplate renders a CICDRun's stored GateResult JSON as a minimal
// human-readable page. No templating library appears anywhere in the
// example pack for this kind of one-off HTML rendering, so this stays on
// html/template.
var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><title>Quality gate report {{.ID}}</title></head>
<body>
<h1>Quality gate report</h1>
<table>
<tr><th>Run</th><td>{{.ID}}</td></tr>
<tr><th>Repository</th><td>{{.RepoID}}</td></tr>
<tr><th>Branch</th><td>{{.Branch}}</td></tr>
<tr><th>Commit</th><td>{{.Commit}}</td></tr>
<tr><th>Triggered by</th><td>{{.TriggeredBy}}</td></tr>
<tr><th>Status</th><td>{{.Status}}</td></tr>
<tr><th>Created</th><td>{{.CreatedAt}}</td></tr>
</table>
<h2>Result</h2>
<pre>{{.GateResult}}</pre>
</body>
</html>
`))

func renderReport(run *model.CICDRun) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, run); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
