package textgen

import "context"

// StaticProvider returns a fixed list of texts. With no texts it behaves as
// a provider that always comes back empty, which makes Prepare fall back to
// templated descriptions.
type StaticProvider struct {
	Texts []string
}

func (p *StaticProvider) Name() string {
	return "static"
}

func (p *StaticProvider) Generate(ctx context.Context, req Request) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(p.Texts) == 0 {
		return nil, ErrNoVariants
	}
	out := make([]string, len(p.Texts))
	copy(out, p.Texts)
	return out, nil
}
