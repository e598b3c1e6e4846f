package codesource

import (
	"testing"
	"time"

	"github.com/yumio/endwatch/pkg/codes"
)

func candidateCodes(list []codes.Candidate) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.Code)
	}
	return out
}

func assertCodes(t *testing.T, got []codes.Candidate, want ...string) {
	t.Helper()
	gotCodes := candidateCodes(got)
	if len(gotCodes) != len(want) {
		t.Fatalf("extracted %v, want %v", gotCodes, want)
	}
	for i := range want {
		if gotCodes[i] != want[i] {
			t.Fatalf("extracted %v, want %v", gotCodes, want)
		}
	}
}

func TestExtractGame8Table(t *testing.T) {
	page := `<html><body>
<table>
<tr><th>Redeem Codes</th><th>Reward</th></tr>
<tr><td><input value="ENDFIELD2026" data-clipboard-text="ENDFIELD2026">ENDFIELD2026<br>Expires soon</td><td>500 credits</td></tr>
<tr><td>OPENING-GIFT<br>New</td><td>Headhunting ticket</td></tr>
</table>
<p>Last Updated: February 3, 2026</p>
</body></html>`

	got := extractGame8(page, Game8().Meta())
	assertCodes(t, got, "ENDFIELD2026", "OPENING-GIFT")

	want := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	if !got[0].PublishedAt.Equal(want) {
		t.Errorf("publishedAt = %v, want %v", got[0].PublishedAt, want)
	}
	if got[0].SourceID != "game8" || got[0].SourceTier != codes.TierCurated {
		t.Errorf("candidate metadata = %+v", got[0])
	}
}

func TestExtractGame8SkipsUnrelatedTables(t *testing.T) {
	page := `<table><tr><th>Operator</th></tr><tr><td>SURTR-ALTER</td><td>6 star</td></tr></table>`
	got := extractGame8(page, Game8().Meta())
	if len(got) != 0 {
		t.Errorf("non-redeem table produced candidates: %v", candidateCodes(got))
	}
}

func TestExtractGame8Narrative(t *testing.T) {
	page := `<p>The code Endfield2026 is available until the end of the month,
and LAUNCHWEEK1 is limited to new accounts.</p>`
	got := extractGame8(page, Game8().Meta())
	assertCodes(t, got, "ENDFIELD2026", "LAUNCHWEEK1")
}

func TestExtractPocketTactics(t *testing.T) {
	page := `<html><body>
<p>Updated: February 3, 2026</p>
<p>Here are the new Arknights: Endfield codes:</p>
<ul>
<li><strong>ENDFIELD2026</strong> - 500 Originium</li>
<li><strong>LAUNCHWEEK1</strong> - T-creds and more</li>
</ul>
<p>If you&#8217;re wondering which codes to redeem first, see below.</p>
<p>EXPIREDONE1 - 100 credits</p>
</body></html>`

	got := extractPocketTactics(page, PocketTactics().Meta())
	assertCodes(t, got, "ENDFIELD2026", "LAUNCHWEEK1")

	want := time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)
	if !got[0].PublishedAt.Equal(want) {
		t.Errorf("publishedAt = %v, want %v", got[0].PublishedAt, want)
	}
}

func TestExtractPocketTacticsTextFallback(t *testing.T) {
	// No <li><strong> markup: the scoped plain-text list still matches.
	page := `<p>here are the new arknights endfield codes</p>
<p>PLAINCODE1 - 300 credits</p>
<p>TCREDCODE - T-creds</p>
<p>if you're wondering which to use</p>`

	got := extractPocketTactics(page, PocketTactics().Meta())
	assertCodes(t, got, "PLAINCODE1", "TCREDCODE")
}

func TestExtractDestructoid(t *testing.T) {
	page := `<html><body>
<p>Updated: February 3, 2026</p>
<h2>Active Arknights: Endfield codes</h2>
<ul>
<li>ENDFIELD2026 &#8211; Redeem for 500 Originium</li>
<li>LAUNCHWEEK1 - Redeem for a headhunting ticket</li>
</ul>
<h2>Expired Arknights: Endfield codes</h2>
<ul>
<li>OLDCODE123 &#8211; Redeem for 100 credits</li>
</ul>
</body></html>`

	got := extractDestructoid(page, Destructoid().Meta())
	assertCodes(t, got, "ENDFIELD2026", "LAUNCHWEEK1")
}

func TestExtractDestructoidNoActiveSection(t *testing.T) {
	// Without the Active heading the whole page is scanned.
	page := `<p>STRAYCODE1 - Redeem for something</p>`
	got := extractDestructoid(page, Destructoid().Meta())
	assertCodes(t, got, "STRAYCODE1")
}

func TestResolve(t *testing.T) {
	sources, unknown := Resolve([]string{"destructoid", "nope", "game8"})
	if len(unknown) != 1 || unknown[0] != "nope" {
		t.Errorf("unknown = %v", unknown)
	}
	if len(sources) != 2 || sources[0].Meta().ID != "destructoid" || sources[1].Meta().ID != "game8" {
		ids := make([]string, 0, len(sources))
		for _, s := range sources {
			ids = append(ids, s.Meta().ID)
		}
		t.Errorf("resolved order = %v", ids)
	}
}

func TestIDs(t *testing.T) {
	got := IDs()
	want := []string{"game8", "destructoid", "pocket_tactics"}
	if len(got) != len(want) {
		t.Fatalf("IDs() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("IDs() = %v, want %v", got, want)
		}
	}
}
