package extractor

import (
	"context"

	"go.uber.org/zap"

	"github.com/betagouv/quotecheck/internal/parser"
	"github.com/betagouv/quotecheck/pkg/albert"
)

// privateDataPrompt asks targeted questions about the
// personally-identifying and administrative fields only. It is sent to
// Albert so this content stays on sovereign hosting.
const privateDataPrompt = `Tu analyses un devis de travaux de rénovation énergétique.
Réponds uniquement sur les données administratives et personnelles suivantes, sans rien inventer :
- nom du client et du professionnel
- adresse du client et adresse des travaux
- SIRET du professionnel
- numéro RGE
- numéro du devis et date d'émission
- téléphone et courriel

Réponds avec un unique objet JSON, par exemple :
{"client_nom": "...", "pro_nom": "...", "client_adresse": "...", "travaux_adresse": "...", "siret": "...", "rge_numero": "...", "numero_devis": "...", "date_devis": "...", "telephone": "...", "email": "..."}
Utilise null pour toute donnée absente du texte.`

// PrivateQAStrategy answers targeted questions about
// personally-identifying fields via the Albert model. It receives the
// text before anonymisation; everything else gets the anonymised
// variant.
type PrivateQAStrategy struct {
	client albert.Client
	model  string
	format parser.Format
}

// NewPrivateQA creates the Albert-backed private-data extractor. A nil
// client marks the strategy unconfigured.
func NewPrivateQA(client albert.Client, modelName string) *PrivateQAStrategy {
	return &PrivateQAStrategy{client: client, model: modelName, format: parser.FormatJSON}
}

func (s *PrivateQAStrategy) Name() string { return NamePrivateQA }

func (s *PrivateQAStrategy) Configured() bool { return s.client != nil }

func (s *PrivateQAStrategy) Extract(ctx context.Context, text string) (*Result, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	resp, err := s.client.ChatCompletion(ctx, albert.ChatCompletionRequest{
		Model: s.model,
		Messages: []albert.Message{
			{Role: "system", Content: privateDataPrompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, parser.ErrResult
	}

	content := resp.Choices[0].Message.Content
	attrs, err := parser.Parse(content, s.format)
	if err != nil {
		zap.L().Warn("extractor: private-data response unparseable",
			zap.String("model", s.model),
			zap.Error(err),
		)
		return nil, err
	}

	return &Result{
		Attributes:  attrs,
		RawResponse: content,
		Tokens:      resp.Usage.TotalTokens,
	}, nil
}

var _ Strategy = (*PrivateQAStrategy)(nil)
var _ Strategy = (*NaiveStrategy)(nil)
