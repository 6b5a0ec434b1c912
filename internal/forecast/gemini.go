package forecast

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const (
	DefaultModel   = "gemini-1.5-flash"
	DefaultTimeout = 30 * time.Second

	// Priming and prompt text are Spanish. Override with WithSystemContext.
	DefaultSystemContext = "Eres un experto en análisis de datos de sensores para frutas y verduras. " +
		"Tu tarea es analizar datos como niveles de gas etileno (en ppm), temperatura (en °C) y humedad (en %), " +
		"y proporcionar un pronóstico de descomposición y consejos prácticos para bananos."
	systemAck = "Entendido, estoy listo para analizar los datos."
)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiOption configures the Gemini oracle.
type GeminiOption func(*geminiSettings)

type geminiSettings struct {
	model         string
	systemContext string
	timeout       time.Duration
	logger        logrus.FieldLogger
}

// WithModel selects the generative model.
func WithModel(model string) GeminiOption {
	return func(s *geminiSettings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithSystemContext replaces the priming instruction of the chat.
func WithSystemContext(text string) GeminiOption {
	return func(s *geminiSettings) {
		if text != "" {
			s.systemContext = text
		}
	}
}

// WithTimeout bounds each forecast call.
func WithTimeout(timeout time.Duration) GeminiOption {
	return func(s *geminiSettings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger logrus.FieldLogger) GeminiOption {
	return func(s *geminiSettings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// GeminiOracle asks a Gemini chat session for forecasts. The session keeps
// the conversation history, so calls are serialized.
type GeminiOracle struct {
	client  *genai.Client
	timeout time.Duration
	logger  logrus.FieldLogger

	mu      sync.Mutex
	session chatSession
}

// NewGeminiOracle opens a client and primes a chat session.
func NewGeminiOracle(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiOracle, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("forecast: empty api key")
	}
	settings := geminiSettings{
		model:         DefaultModel,
		systemContext: DefaultSystemContext,
		timeout:       DefaultTimeout,
		logger:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&settings)
		}
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("forecast: create client: %w", err)
	}
	session := client.GenerativeModel(settings.model).StartChat()
	session.History = primingHistory(settings.systemContext)

	oracle := newGeminiOracle(session, settings)
	oracle.client = client
	return oracle, nil
}

func newGeminiOracle(session chatSession, settings geminiSettings) *GeminiOracle {
	return &GeminiOracle{
		session: session,
		timeout: settings.timeout,
		logger:  settings.logger.WithField("component", "forecast"),
	}
}

func primingHistory(systemContext string) []*genai.Content {
	return []*genai.Content{
		{Role: "user", Parts: []genai.Part{genai.Text(systemContext)}},
		{Role: "model", Parts: []genai.Part{genai.Text(systemAck)}},
	}
}

// Prompt renders the question sent for one set of measurements.
func Prompt(ethylene, temperature, humidity float64) string {
	return fmt.Sprintf(
		"Datos de sensores: Etileno: %s ppm, Temperatura: %s °C, Humedad: %s %%\n"+
			" Dame un pronostico de dias de cuando se pudre el banano. Recuerda solo dame el numero según los datos que te envíe.",
		formatFloat(ethylene), formatFloat(temperature), formatFloat(humidity),
	)
}

// Forecast sends the measurements and returns the model's text reply.
func (o *GeminiOracle) Forecast(ctx context.Context, ethylene, temperature, humidity float64) (string, error) {
	if o == nil || o.session == nil {
		return "", fmt.Errorf("%w: nil session", ErrOracle)
	}
	prompt := Prompt(ethylene, temperature, humidity)

	o.mu.Lock()
	defer o.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	o.logger.WithField("prompt", prompt).Info("forecast request")
	resp, err := o.session.SendMessage(callCtx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOracle, err)
	}
	text := responseText(resp)
	o.logger.WithField("response", text).Debug("forecast response")
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty response", ErrOracle)
	}
	return text, nil
}

// Close releases the underlying client.
func (o *GeminiOracle) Close() error {
	if o == nil || o.client == nil {
		return nil
	}
	return o.client.Close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	content := resp.Candidates[0].Content
	if content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
