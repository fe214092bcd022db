package show

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/go-appsec/wirehttp/wirehttp/cliutil"
	"github.com/go-appsec/wirehttp/wirehttp/transcript"
)

const statusColumn = 4

func run(path string, index int, asJSON bool, w io.Writer) error {
	exchanges, err := transcript.ReadFile(path)
	if err != nil {
		return err
	}

	if index > 0 {
		if index > len(exchanges) {
			return fmt.Errorf("--index %d out of range: transcript has %d exchanges", index, len(exchanges))
		}
		exchanges = exchanges[index-1 : index]
	}

	switch {
	case asJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(exchanges)
	case index > 0:
		printExchange(w, &exchanges[0])
		return nil
	case len(exchanges) == 0:
		cliutil.NoResults(w, "No exchanges recorded.")
		return nil
	}

	t := cliutil.NewTable(w)
	t.AppendHeader(table.Row{"#", "Time", "Method", "URL", "Status", "Size", "Duration"})
	t.SetRowPainter(cliutil.StatusRowPainter(statusColumn))
	for i, e := range exchanges {
		var status, size int
		if e.Response != nil {
			status, size = e.Response.StatusCode, len(e.Response.Body)
		}
		t.AppendRow(table.Row{
			i + 1,
			e.Time.Format(time.DateTime),
			e.Method,
			e.URL,
			status,
			size,
			e.Duration.Round(time.Millisecond),
		})
	}
	t.Render()
	cliutil.Summary(w, len(exchanges), "exchange", "exchanges")
	cliutil.HintCommand(w, "To view an exchange", "wirehttp show -n <#> "+path)
	return nil
}

func printExchange(w io.Writer, e *transcript.Exchange) {
	_, _ = fmt.Fprintf(w, "%s %s\n", cliutil.Bold("Connection:"), cliutil.ID(e.ConnID))
	_, _ = fmt.Fprintf(w, "%s %s (%s)\n\n", cliutil.Bold("Time:"), e.Time.Format(time.RFC3339), e.Duration.Round(time.Millisecond))

	_, _ = fmt.Fprintln(w, cliutil.Bold("Request"))
	_, _ = fmt.Fprintln(w, strings.TrimRight(strings.ReplaceAll(bodyText(e.Request), "\r\n", "\n"), "\n"))
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, cliutil.Bold("Response"))
	resp := e.Response
	if resp == nil {
		cliutil.NoResults(w, "No response recorded.")
		return
	}
	_, _ = fmt.Fprintf(w, "%s %d %s\n", resp.Version, resp.StatusCode, resp.StatusText)

	if len(resp.Headers) > 0 {
		t := cliutil.NewTable(w)
		t.AppendHeader(table.Row{"Header", "Value"})
		for _, h := range resp.Headers {
			t.AppendRow(table.Row{h.Name, h.Value})
		}
		t.Render()
	}

	body, err := resp.DecodedBody()
	if err != nil {
		body = resp.Body
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, bodyText(body))
	}
}

// bodyText returns printable text, or a size note for binary content.
func bodyText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return fmt.Sprintf("<%d bytes binary>", len(b))
}
