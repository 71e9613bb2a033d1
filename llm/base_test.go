package llm

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/richinex/chatkit/chunk"
	"github.com/richinex/chatkit/model"
)

// collect drains seq, returning the chunks seen before the first error.
func collect(seq iter.Seq2[chunk.Chunk, error]) ([]chunk.Chunk, error) {
	var out []chunk.Chunk
	for c, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}

func types(chunks []chunk.Chunk) []chunk.Type {
	out := make([]chunk.Type, len(chunks))
	for i, c := range chunks {
		out[i] = c.Type
	}
	return out
}

func TestDisabledModelsNotServed(t *testing.T) {
	p := NewLoremIpsumProcessor("lorem", []model.AIModel{
		{ID: "live", Text: "Live"},
		{ID: "retired", Text: "Retired", Disabled: true},
	}, 0, 0, nil)

	models := p.SupportedModels()
	if _, ok := models["retired"]; ok || len(models) != 1 {
		t.Errorf("SupportedModels = %v, want only live", models)
	}
	var unsupported *UnsupportedModelError
	if _, err := p.Validate("retired"); !errors.As(err, &unsupported) {
		t.Errorf("Validate(retired) = %v, want UnsupportedModelError", err)
	}

	m := NewModelManager(nil)
	m.RegisterProcessor(p.Name(), p)
	if _, ok := m.Model("retired"); ok {
		t.Error("disabled model registered")
	}
}

func TestCancellationTokenNilSafe(t *testing.T) {
	var token *CancellationToken
	token.Cancel()
	if token.Cancelled() {
		t.Error("nil token should never trip")
	}
	if token.Done() != nil {
		t.Error("nil token should have a nil done channel")
	}
}

func TestCancellationTokenCancelTwice(t *testing.T) {
	token := NewCancellationToken()
	if token.Cancelled() {
		t.Fatal("new token already cancelled")
	}
	token.Cancel()
	token.Cancel()
	if !token.Cancelled() {
		t.Fatal("token not cancelled")
	}
	select {
	case <-token.Done():
	default:
		t.Error("done channel not closed")
	}
}

func TestValidateUnknownModel(t *testing.T) {
	p := NewLoremIpsumProcessor("lorem", nil, 0, 3, nil)

	seq, err := p.Process(context.Background(), Request{ModelID: "gpt-unknown"})
	if seq != nil {
		t.Error("expected no sequence for an unknown model")
	}
	if !errors.Is(err, ErrUnsupportedModel) {
		t.Fatalf("expected ErrUnsupportedModel, got %v", err)
	}
	var uerr *UnsupportedModelError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected *UnsupportedModelError, got %T", err)
	}
	if uerr.Processor != "lorem" || uerr.ModelID != "gpt-unknown" {
		t.Errorf("unexpected error fields: %+v", uerr)
	}
}

func TestSupportedModelsAppliesDefaultsAndCopies(t *testing.T) {
	b := newBase("p", []model.AIModel{{ID: "m1"}}, nil)

	models := b.SupportedModels()
	m, ok := models["m1"]
	if !ok {
		t.Fatal("m1 missing")
	}
	if m.Icon != model.DefaultIcon || m.Text != "m1" || m.Model != "m1" {
		t.Errorf("defaults not applied: %+v", m)
	}

	delete(models, "m1")
	if _, ok := b.SupportedModels()["m1"]; !ok {
		t.Error("SupportedModels returned the internal map")
	}
}

func TestStreamIsSingleUse(t *testing.T) {
	p := NewLoremIpsumProcessor("lorem", nil, 0, 2, nil)
	seq, err := p.Process(context.Background(), Request{ModelID: LoremIpsumModel.ID})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if _, err := collect(seq); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	chunks, err := collect(seq)
	if !errors.Is(err, ErrStreamConsumed) {
		t.Fatalf("expected ErrStreamConsumed, got %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("second pass yielded %d chunks", len(chunks))
	}
}

func TestEmitterStopsAfterTokenTrips(t *testing.T) {
	token := NewCancellationToken()
	var got []chunk.Chunk
	e := &emitter{
		token: token,
		yield: func(c chunk.Chunk, err error) bool {
			if err != nil {
				t.Fatalf("unexpected error yielded: %v", err)
			}
			got = append(got, c)
			return true
		},
	}
	f := chunk.NewFactory("test")

	if !e.emit(f.Text("a")) {
		t.Fatal("emit before cancel should continue")
	}
	token.Cancel()
	if e.emit(f.Text("b")) {
		t.Error("emit after cancel should stop")
	}
	e.fail(errors.New("boom"))
	if !e.done() {
		t.Error("emitter should report done")
	}
	if len(got) != 1 || got[0].Text != "a" {
		t.Errorf("unexpected chunks: %+v", got)
	}
}
