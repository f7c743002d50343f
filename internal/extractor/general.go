package extractor

import (
	"context"

	"go.uber.org/zap"

	"github.com/betagouv/quotecheck/internal/parser"
	"github.com/betagouv/quotecheck/pkg/anthropic"
	"github.com/betagouv/quotecheck/pkg/mistral"
)

// generalPrompt drives the detection of works and subsidies. The geste
// vocabulary mirrors the types the validator's rule table knows.
const generalPrompt = `Tu analyses un devis de travaux de rénovation énergétique, déjà anonymisé.
Détecte chaque geste de travaux et chaque aide financière mentionnés.

Types de gestes connus : pac_air_eau, pac_air_air, chaudiere_biomasse, poele_bois,
chauffe_eau_thermodynamique, isolation_murs, isolation_combles, isolation_plancher,
menuiserie_fenetre, vmc_double_flux, vmc_simple_flux, panneaux_solaires.

Aides connues : ma_prime_renov, cee, eco_ptz, tva_reduite, aide_locale.

Réponds avec un unique objet JSON de la forme :
{"gestes": [{"type": "pac_air_eau", "marque": "...", "reference": "...", "puissance": 6.0, "scop": 4.5, "classe_energetique": "..."}],
 "aides": ["ma_prime_renov"]}
Chaque geste doit porter un champ "type". Liste les gestes dans l'ordre du devis.
Utilise null pour un champ non présent.`

const generalMaxTokens = 4096

// GeneralQAStrategy detects gestes and aides from the full (anonymised)
// quote text via a general-purpose model. Mistral is the default
// backend; Anthropic can substitute when configured.
type GeneralQAStrategy struct {
	mistral   mistral.Client
	anthropic anthropic.Client
	modelName string
	useClaude bool
}

// NewGeneralQA creates the Mistral-backed general extractor. A nil
// client marks the strategy unconfigured.
func NewGeneralQA(client mistral.Client, modelName string) *GeneralQAStrategy {
	return &GeneralQAStrategy{mistral: client, modelName: modelName}
}

// NewGeneralQAAnthropic creates the general extractor on the Anthropic
// backend instead of Mistral.
func NewGeneralQAAnthropic(client anthropic.Client, modelName string) *GeneralQAStrategy {
	return &GeneralQAStrategy{anthropic: client, modelName: modelName, useClaude: true}
}

func (s *GeneralQAStrategy) Name() string { return NameGeneralQA }

func (s *GeneralQAStrategy) Configured() bool {
	if s.useClaude {
		return s.anthropic != nil
	}
	return s.mistral != nil
}

func (s *GeneralQAStrategy) Extract(ctx context.Context, text string) (*Result, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}

	content, tokens, err := s.complete(ctx, text)
	if err != nil {
		return nil, err
	}

	attrs, err := parser.Parse(content, parser.FormatJSON)
	if err != nil {
		zap.L().Warn("extractor: general response unparseable",
			zap.String("model", s.modelName),
			zap.Error(err),
		)
		return nil, err
	}

	return &Result{
		Attributes:  attrs,
		RawResponse: content,
		Tokens:      tokens,
	}, nil
}

func (s *GeneralQAStrategy) complete(ctx context.Context, text string) (string, int, error) {
	if s.useClaude {
		resp, err := s.anthropic.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     s.modelName,
			MaxTokens: generalMaxTokens,
			System:    generalPrompt,
			Messages:  []anthropic.Message{{Role: "user", Content: text}},
		})
		if err != nil {
			return "", 0, err
		}
		return resp.Text(), resp.Usage.Total(), nil
	}

	resp, err := s.mistral.ChatCompletion(ctx, mistral.ChatCompletionRequest{
		Model: s.modelName,
		Messages: []mistral.Message{
			{Role: "system", Content: generalPrompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", 0, err
	}
	if len(resp.Choices) == 0 {
		return "", 0, parser.ErrResult
	}
	return resp.Choices[0].Message.Content, resp.Usage.TotalTokens, nil
}

var _ Strategy = (*GeneralQAStrategy)(nil)
