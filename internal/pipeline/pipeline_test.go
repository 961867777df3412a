package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newsharvest/internal/config"
	"newsharvest/internal/store"
	"newsharvest/internal/validate"
)

type fakeFetcher struct {
	pages map[string][]byte
	calls map[string]int
}

func (f *fakeFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[url]++
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return body, nil
}

type fakeValidator struct {
	verdict *validate.Verdict
	err     error
	calls   int
}

func (f *fakeValidator) Validate(ctx context.Context, title, content string) (*validate.Verdict, error) {
	f.calls++
	return f.verdict, f.err
}

func testConfig(t *testing.T, target, maxSweeps int, seeds ...string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("failed to build config: %v", err)
	}
	cfg.Seeds = map[string][]string{"technology": seeds}
	cfg.Budget.TargetPerCategory = target
	cfg.Budget.MaxSweeps = maxSweeps
	return cfg
}

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestPipeline(cfg *config.Config, db *store.DB, f Fetcher, v Validator) *Pipeline {
	p := New(cfg, db, f, v)
	p.sleep = func(context.Context, time.Duration) {}
	p.delay = func() time.Duration { return 0 }
	return p
}

func seedHTML(links ...string) []byte {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	return []byte(b.String())
}

func articleHTML(title string, paragraphs ...string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, `<html><head><title>%s</title>
<meta property="og:image" content="https://cdn.test/img.jpg">
</head><body><div class="article-content">`, title)
	for _, p := range paragraphs {
		fmt.Fprintf(&b, "<p>%s</p>", p)
	}
	b.WriteString("</div></body></html>")
	return []byte(b.String())
}

// relevantArticle shares enough title words with its body to clear the
// relevance threshold.
func relevantArticle() []byte {
	return articleHTML("City Council Approves New Transit Plan",
		"The city council voted on Tuesday to approve the transit plan after months of public debate.",
		"Supporters of the plan said the new transit routes would connect the city with nearby suburbs.")
}

// irrelevantArticle shares no title words with its body, so its relevance
// score is zero.
func irrelevantArticle() []byte {
	return articleHTML("Quantum Breakthrough Announced Today",
		"This recipe combines fresh basil with slow roasted tomatoes for a simple weeknight dinner.",
		"Serve the pasta immediately with grated cheese and a drizzle of olive oil on top.")
}

func TestRunPersistsRelevantAndSkipsIrrelevant(t *testing.T) {
	seed := "https://news.test/tech"
	f := &fakeFetcher{pages: map[string][]byte{
		seed:                         seedHTML("https://news.test/accepted", "https://news.test/rejected"),
		"https://news.test/accepted": relevantArticle(),
		"https://news.test/rejected": irrelevantArticle(),
	}}
	db := openTestDB(t)
	p := newTestPipeline(testConfig(t, 2, 1, seed), db, f, nil)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Categories) != 1 {
		t.Fatalf("expected 1 category result, got %d", len(result.Categories))
	}

	cr := result.Categories[0]
	if cr.Persisted != 1 {
		t.Errorf("expected exactly 1 persisted article, got %d", cr.Persisted)
	}
	if cr.Reasons["low relevance"] != 1 {
		t.Errorf("expected 1 low-relevance skip, got %d (reasons: %v)", cr.Reasons["low relevance"], cr.Reasons)
	}
	if cr.Extracted != 2 {
		t.Errorf("expected 2 extracted, got %d", cr.Extracted)
	}

	ok, err := db.Exists("https://news.test/accepted")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected accepted article in store")
	}
	ok, _ = db.Exists("https://news.test/rejected")
	if ok {
		t.Error("expected rejected article not stored")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	seed := "https://news.test/tech"
	f := &fakeFetcher{pages: map[string][]byte{
		seed:                         seedHTML("https://news.test/accepted"),
		"https://news.test/accepted": relevantArticle(),
	}}
	db := openTestDB(t)
	p := newTestPipeline(testConfig(t, 2, 1, seed), db, f, nil)

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.NewlyPersisted() != 1 {
		t.Fatalf("expected 1 persisted on first run, got %d", first.NewlyPersisted())
	}

	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.NewlyPersisted() != 0 {
		t.Errorf("expected 0 persisted on second run, got %d", second.NewlyPersisted())
	}
	if second.Categories[0].Duplicates != 1 {
		t.Errorf("expected 1 duplicate on second run, got %d", second.Categories[0].Duplicates)
	}

	counts, _ := db.CountByCategory()
	if counts["technology"] != 1 {
		t.Errorf("expected 1 stored article after both runs, got %d", counts["technology"])
	}
}

func TestRunRespectsQuota(t *testing.T) {
	seed := "https://news.test/tech"
	pages := map[string][]byte{}
	var links []string
	for i := 0; i < 5; i++ {
		url := fmt.Sprintf("https://news.test/story-%d", i)
		links = append(links, url)
		pages[url] = relevantArticle()
	}
	pages[seed] = seedHTML(links...)

	db := openTestDB(t)
	p := newTestPipeline(testConfig(t, 2, 3, seed), db, &fakeFetcher{pages: pages}, nil)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cr := result.Categories[0]
	if cr.Persisted != 2 {
		t.Errorf("expected quota of 2 persisted, got %d", cr.Persisted)
	}
	if !cr.QuotaMet {
		t.Error("expected quota met")
	}
	if cr.Sweeps != 1 {
		t.Errorf("expected quota met in first sweep, got %d", cr.Sweeps)
	}

	counts, _ := db.CountByCategory()
	if counts["technology"] != 2 {
		t.Errorf("expected 2 stored articles, got %d", counts["technology"])
	}
}

func TestRunContinuesPastFailedSeed(t *testing.T) {
	badSeed := "https://down.test/tech"
	goodSeed := "https://news.test/tech"
	f := &fakeFetcher{pages: map[string][]byte{
		goodSeed:                     seedHTML("https://news.test/accepted"),
		"https://news.test/accepted": relevantArticle(),
	}}
	db := openTestDB(t)
	p := newTestPipeline(testConfig(t, 1, 1, badSeed, goodSeed), db, f, nil)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cr := result.Categories[0]
	if cr.Failed != 1 {
		t.Errorf("expected 1 failed seed, got %d", cr.Failed)
	}
	if cr.Persisted != 1 {
		t.Errorf("expected good seed still harvested, got %d persisted", cr.Persisted)
	}
}

func TestRunAppliesValidatorVerdict(t *testing.T) {
	seed := "https://news.test/tech"
	f := &fakeFetcher{pages: map[string][]byte{
		seed:                         seedHTML("https://news.test/accepted"),
		"https://news.test/accepted": relevantArticle(),
	}}
	v := &fakeValidator{verdict: &validate.Verdict{
		Kind:     validate.KindJSON,
		Title:    "Council Approves Transit Plan",
		Content:  "The cleaned article body.",
		Keywords: []string{"transit", "city"},
		IsValid:  true,
	}}
	db := openTestDB(t)
	p := newTestPipeline(testConfig(t, 1, 1, seed), db, f, v)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NewlyPersisted() != 1 {
		t.Fatalf("expected 1 persisted, got %d", result.NewlyPersisted())
	}
	if v.calls != 1 {
		t.Errorf("expected validator called once, got %d", v.calls)
	}

	articles, _ := db.GetByCategory("technology", 10)
	if len(articles) != 1 {
		t.Fatalf("expected 1 stored article, got %d", len(articles))
	}
	if articles[0].Title != "Council Approves Transit Plan" {
		t.Errorf("expected validator title applied, got %q", articles[0].Title)
	}
	if len(articles[0].Keywords) != 2 {
		t.Errorf("expected validator keywords applied, got %v", articles[0].Keywords)
	}
}

func TestRunValidatorRejection(t *testing.T) {
	seed := "https://news.test/tech"
	f := &fakeFetcher{pages: map[string][]byte{
		seed:                         seedHTML("https://news.test/accepted"),
		"https://news.test/accepted": relevantArticle(),
	}}
	v := &fakeValidator{verdict: &validate.Verdict{IsValid: false, Reason: "not a news article"}}
	db := openTestDB(t)
	p := newTestPipeline(testConfig(t, 1, 1, seed), db, f, v)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cr := result.Categories[0]
	if cr.Persisted != 0 {
		t.Errorf("expected nothing persisted, got %d", cr.Persisted)
	}
	if cr.Reasons["not a news article"] != 1 {
		t.Errorf("expected validator reason recorded, got %v", cr.Reasons)
	}
}

func TestRunValidatorErrorCountsAsFailure(t *testing.T) {
	seed := "https://news.test/tech"
	f := &fakeFetcher{pages: map[string][]byte{
		seed:                         seedHTML("https://news.test/accepted"),
		"https://news.test/accepted": relevantArticle(),
	}}
	v := &fakeValidator{err: errors.New("provider down")}
	db := openTestDB(t)
	p := newTestPipeline(testConfig(t, 1, 1, seed), db, f, v)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cr := result.Categories[0]
	if cr.Persisted != 0 {
		t.Errorf("expected nothing persisted, got %d", cr.Persisted)
	}
	if cr.Reasons["validation failed"] != 1 {
		t.Errorf("expected validation failure recorded, got %v", cr.Reasons)
	}
}

func TestRunRejectsMissingMedia(t *testing.T) {
	seed := "https://news.test/tech"
	noMedia := []byte(`<html><head><title>City Council Approves New Transit Plan</title></head>
<body><div class="article-content">
<p>The city council voted on Tuesday to approve the transit plan after months of public debate.</p>
</div></body></html>`)
	f := &fakeFetcher{pages: map[string][]byte{
		seed:                         seedHTML("https://news.test/accepted"),
		"https://news.test/accepted": noMedia,
	}}
	db := openTestDB(t)
	p := newTestPipeline(testConfig(t, 1, 1, seed), db, f, nil)

	result, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cr := result.Categories[0]
	if cr.Persisted != 0 {
		t.Errorf("expected nothing persisted without media, got %d", cr.Persisted)
	}
	if cr.Reasons["no media"] != 1 {
		t.Errorf("expected no-media skip recorded, got %v", cr.Reasons)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	seed := "https://news.test/tech"
	f := &fakeFetcher{pages: map[string][]byte{
		seed:                         seedHTML("https://news.test/accepted"),
		"https://news.test/accepted": relevantArticle(),
	}}
	db := openTestDB(t)
	p := newTestPipeline(testConfig(t, 1, 1, seed), db, f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.NewlyPersisted() != 0 {
		t.Errorf("expected no work after cancellation, got %d persisted", result.NewlyPersisted())
	}
}
