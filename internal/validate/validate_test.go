package validate

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	i := f.calls
	f.calls++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	var resp string
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	return resp, err
}

func (f *fakeProvider) IsConfigured() bool { return true }

func TestValidateSuccess(t *testing.T) {
	p := &fakeProvider{responses: []string{`{"title":"Clean","content":"Body.","keywords":["k"],"is_valid":true}`}}
	v := New(p, 3, 512)

	verdict, err := v.Validate(context.Background(), "Raw", "body text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Title != "Clean" || !verdict.IsValid {
		t.Errorf("unexpected verdict %+v", verdict)
	}
	if p.calls != 1 {
		t.Errorf("expected 1 call, got %d", p.calls)
	}
}

func TestValidateRetriesProviderErrors(t *testing.T) {
	p := &fakeProvider{
		errs:      []error{errors.New("overloaded"), errors.New("overloaded"), nil},
		responses: []string{"", "", `{"title":"T","content":"C","is_valid":true}`},
	}
	v := New(p, 3, 512)

	verdict, err := v.Validate(context.Background(), "Raw", "body")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict == nil || verdict.Title != "T" {
		t.Errorf("expected verdict after retries, got %+v", verdict)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 calls, got %d", p.calls)
	}
}

func TestValidateGivesUpAfterAttempts(t *testing.T) {
	boom := errors.New("down")
	p := &fakeProvider{errs: []error{boom, boom, boom}}
	v := New(p, 3, 512)

	_, err := v.Validate(context.Background(), "Raw", "body")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", p.calls)
	}
}

func TestValidateEmptyResponseNotRetried(t *testing.T) {
	p := &fakeProvider{responses: []string{"   "}}
	v := New(p, 3, 512)

	_, err := v.Validate(context.Background(), "Raw", "body")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("expected 1 call for empty response, got %d", p.calls)
	}
}

func TestValidateNoProvider(t *testing.T) {
	v := New(nil, 3, 512)
	_, err := v.Validate(context.Background(), "Raw", "body")
	if !errors.Is(err, ErrNoProvider) {
		t.Fatalf("expected ErrNoProvider, got %v", err)
	}
}

func TestValidateUnparseableGetsDegraded(t *testing.T) {
	p := &fakeProvider{responses: []string{"total nonsense with no structure at all, just words"}}
	v := New(p, 3, 512)

	verdict, err := v.Validate(context.Background(), "Kept Title", "body")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Kind != KindDegraded {
		t.Errorf("expected degraded verdict, got %q", verdict.Kind)
	}
	if verdict.Title != "Kept Title" {
		t.Errorf("expected original title kept, got %q", verdict.Title)
	}
}
