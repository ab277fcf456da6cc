// Command handy-engine wires the engine's collaborators together and
// drives them from the command line, in place of the desktop
// application's tray UI and global hotkey listener. It is a thin
// composition root: device selection, hotkey binding, and the OS-level
// paste/clipboard backends are all external collaborators this binary
// leaves to stubs.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/handy-ai/handy-engine/pkg/audio"
	"github.com/handy-ai/handy-engine/pkg/config"
	"github.com/handy-ai/handy-engine/pkg/history"
	"github.com/handy-ai/handy-engine/pkg/llmclient"
	"github.com/handy-ai/handy-engine/pkg/logging"
	"github.com/handy-ai/handy-engine/pkg/postprocess"
	"github.com/handy-ai/handy-engine/pkg/rag"
	"github.com/handy-ai/handy-engine/pkg/session"
	"github.com/handy-ai/handy-engine/pkg/suggestion"
	"github.com/handy-ai/handy-engine/pkg/transcribe"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "path to a settings file (YAML/JSON/TOML)")
	dbPath := flag.String("history-db", "history.db", "path to the history SQLite database")
	ragDBPath := flag.String("rag-db", "knowledge.db", "path to the knowledge base SQLite database")
	vadModelPath := flag.String("vad-model", "", "path to the silero-vad-go ONNX model (disables VAD gating when empty)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	_ = godotenv.Load()

	logger, err := logging.New(logging.Options{Debug: *debug, FilePath: "handy-engine.log", MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 28})
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		os.Exit(1)
	}

	settings, err := config.Load(*configPath)
	if err != nil {
		logger.Error("loading settings, continuing with defaults", "error", err)
		settings = config.Default()
	}
	currentSettings := func() config.Settings { return settings }

	if err := os.MkdirAll(settings.RecordingsDir, 0o755); err != nil {
		logger.Error("creating recordings directory", "error", err)
		os.Exit(1)
	}

	recordings := &recordingWriter{dir: settings.RecordingsDir}
	histStore, err := history.Open(*dbPath, settings.RecordingRetentionPeriod, settings.HistoryLimit, recordings, logger)
	if err != nil {
		logger.Error("opening history store", "error", err)
		os.Exit(1)
	}

	ollama := llmclient.NewOllamaClient(settings.ActiveListening.OllamaBaseURL)
	ragStore, err := rag.Open(*ragDBPath, &embedderAdapter{ollama, settings.KnowledgeBase.EmbeddingModel}, settings.KnowledgeBase.EmbeddingModel)
	if err != nil {
		logger.Error("opening knowledge base", "error", err)
		os.Exit(1)
	}

	chatClient := llmclient.NewChatCompletionClient(
		firstNonEmpty(settings.PostProcessModels["base_url"], "http://localhost:11434/v1"),
		settings.PostProcessModels["api_key"],
		settings.PostProcessModels[settings.PostProcessProviderID],
	)
	ppPipeline := postprocess.NewPipeline(chatClient, logger)

	suggestEngine := suggestion.NewEngine(settings.Suggestions, &ragSearcherAdapter{ragStore}, &llmSuggesterAdapter{chatClient}, logger)
	defer suggestEngine.Close()

	engine, err := buildTranscribeEngine(settings, logger)
	if err != nil {
		logger.Error("building transcription engine", "error", err)
		os.Exit(1)
	}
	managedEngine := transcribe.NewManagedEngine(engine, transcribe.Idle2Min)
	defer managedEngine.Close()
	transcriber := &transcriberAdapter{managedEngine}

	var gate *audio.Gate
	if *vadModelPath != "" {
		model, err := audio.NewSileroModel(*vadModelPath)
		if err != nil {
			logger.Error("loading VAD model", "error", err)
			os.Exit(1)
		}
		gate = audio.NewGate(model)
	} else {
		logger.Warn("no -vad-model given; PTT and Ask AI recordings will not be VAD-gated")
	}

	// recordingManager is assigned below, after captureEngine is built;
	// the callback only ever fires once captureEngine.Start() runs, by
	// which point the assignment has already happened.
	var recordingManager *session.RecordingManager

	captureEngine, err := audio.NewCaptureEngine(audio.TargetSampleRate, 1, func(frame []float32) {
		onCaptureFrame(recordingManager, gate, logger, frame)
	}, nil)
	if err != nil {
		logger.Error("building capture engine", "error", err)
		os.Exit(1)
	}
	if err := captureEngine.Open("", audio.TargetSampleRate, 1); err != nil {
		logger.Error("opening capture device", "error", err)
		os.Exit(1)
	}

	recordingManager = session.NewRecordingManager(captureEngine, nil, nil, session.NoopSystemAudio{})
	recordingManager.SetMuteWhileRecording(settings.MuteWhileRecording)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher := &dispatchAdapter{paster: noopPaster{}, clipboard: noopClipboard{}}

	ptt := session.NewPTTMachine(ctx, recordingManager, transcriber, &postprocessAdapter{ppPipeline}, dispatcher, &historyAdapter{histStore}, recordings, currentSettings)
	askAI := session.NewAskAIMachine(ctx, recordingManager, transcriber, &generatorAdapter{ollama, "llama3"}, currentSettings)
	activeListening := session.NewActiveListeningMachine(
		ctx, recordingManager, transcriber,
		&insightAdapter{ollama, settings.ActiveListening.OllamaModel},
		&ragContextAdapter{ragStore},
		&ragIndexAdapter{ragStore},
		&suggestionAdapter{suggestEngine},
		audio.NewEnergyDiarizer(audio.DefaultDiarizerConfig()),
		func() session.ActiveListeningConfig {
			return session.ActiveListeningConfig{
				SegmentDuration:     settings.ActiveListening.SegmentDuration(),
				ContextWindowSize:   settings.ActiveListening.ContextWindowSize,
				PromptTemplate:      "{{transcription}}",
				RAGEnabled:          settings.KnowledgeBase.UseInActiveListening,
				RAGTopK:             settings.KnowledgeBase.TopK,
				RAGSimilarityThresh: settings.KnowledgeBase.SimilarityThreshold,
				IndexInsights:       settings.KnowledgeBase.AutoIndexTranscriptions,
			}
		},
	)

	go runCommandLoop(ctx, logger, ptt, askAI, activeListening)

	logger.Info("handy-engine ready",
		"history_db", *dbPath,
		"rag_db", *ragDBPath,
		"recordings_dir", settings.RecordingsDir,
	)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
}

// onCaptureFrame is the CaptureEngine's per-frame callback (C1): it runs
// every resampled 16kHz mono frame through the VAD gate (C2) and decides
// whether to forward it to rm.PushSamples. Active Listening sessions
// install their own fan-out and want every frame unconditionally, for
// continuous diarization and segmentation (spec.md §4.10); PTT and Ask
// AI recordings want only the frames the gate confirms as speech, per
// spec.md §4.2. rm is nil for the brief window before it's constructed,
// which the capture device cannot yet be producing frames during.
func onCaptureFrame(rm *session.RecordingManager, gate *audio.Gate, logger logging.Logger, frame []float32) {
	if rm == nil {
		return
	}
	if gate == nil || rm.IsActiveListening() {
		rm.PushSamples(frame)
		return
	}

	buf, edge, err := gate.Process(frame)
	if err != nil {
		logger.Warn("VAD gate error, passing frame through ungated", "error", err)
		rm.PushSamples(frame)
		return
	}
	switch edge {
	case audio.EdgeStart:
		rm.PushSamples(buf)
	case audio.NoEdge:
		if gate.IsSpeaking() {
			rm.PushSamples(frame)
		}
	}
}

// runCommandLoop drives the three session state machines from stdin,
// standing in for the global hotkey listener the desktop application
// normally uses (out of scope for this module). Each line is
// "<machine> <action> [args...]":
//
//	ptt press | ptt release | ptt cancel
//	askai press | askai release | askai cancel
//	al start [topic] | al stop
//	quit
func runCommandLoop(ctx context.Context, logger logging.Logger, ptt *session.PTTMachine, askAI *session.AskAIMachine, activeListening *session.ActiveListeningMachine) {
	const binding = "stdin"
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "ptt":
			if len(fields) < 2 {
				continue
			}
			switch fields[1] {
			case "press":
				if err := ptt.Press(binding); err != nil {
					logger.Warn("ptt press", "error", err)
				}
			case "release":
				if _, err := ptt.Release(ctx, binding); err != nil {
					logger.Warn("ptt release", "error", err)
				}
			case "cancel":
				ptt.Cancel()
			}
		case "askai":
			if len(fields) < 2 {
				continue
			}
			switch fields[1] {
			case "press":
				if err := askAI.Press(binding); err != nil {
					logger.Warn("askai press", "error", err)
				}
			case "release":
				if _, err := askAI.Release(ctx, binding); err != nil {
					logger.Warn("askai release", "error", err)
				}
			case "cancel":
				askAI.Cancel()
			}
		case "al":
			if len(fields) < 2 {
				continue
			}
			switch fields[1] {
			case "start":
				topic := strings.Join(fields[2:], " ")
				if _, err := activeListening.StartSession(topic); err != nil {
					logger.Warn("al start", "error", err)
				}
			case "stop":
				if _, err := activeListening.StopSession(); err != nil {
					logger.Warn("al stop", "error", err)
				}
			}
		case "quit", "exit":
			return
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// buildTranscribeEngine picks a transcribe.Engine backend from
// settings; HANDY_STT_PROVIDER selects between the Deepgram and Groq
// remote backends (the two adapted providers), defaulting to Groq's
// Whisper-compatible endpoint.
func buildTranscribeEngine(settings config.Settings, logger logging.Logger) (transcribe.Engine, error) {
	switch os.Getenv("HANDY_STT_PROVIDER") {
	case "deepgram":
		return transcribe.NewDeepgramEngine(os.Getenv("DEEPGRAM_API_KEY")), nil
	default:
		return transcribe.NewGroqEngine(os.Getenv("GROQ_API_KEY"), ""), nil
	}
}

// recordingWriter adapts audio.WriteWavFile/DeleteWavFile to the
// session.RecordingWriter and history.AudioFileDeleter interfaces,
// naming every recording with a fresh UUID under dir.
type recordingWriter struct {
	dir string
}

func (r *recordingWriter) Write(samples []float32) (string, error) {
	name := uuid.NewString() + ".wav"
	if err := audio.WriteWavFile(r.dir+"/"+name, samples); err != nil {
		return "", err
	}
	return name, nil
}

func (r *recordingWriter) Delete(fileName string) error {
	if fileName == "" {
		return nil
	}
	return audio.DeleteWavFile(r.dir + "/" + fileName)
}

// transcriberAdapter converts session.CustomWordRef to
// transcribe.CustomWord, the one detail separating the two packages'
// otherwise identical Transcribe signatures.
type transcriberAdapter struct {
	engine *transcribe.ManagedEngine
}

func (a *transcriberAdapter) Transcribe(ctx context.Context, samples []float32, language string, translateToEnglish bool, customWords []session.CustomWordRef, threshold float64) (string, error) {
	words := make([]transcribe.CustomWord, len(customWords))
	for i, w := range customWords {
		words[i] = transcribe.CustomWord{Word: w.Word}
	}
	return a.engine.Transcribe(ctx, samples, language, translateToEnglish, words, threshold)
}

// postprocessAdapter adapts postprocess.Pipeline.Run's result type to
// session.PostProcessResult.
type postprocessAdapter struct {
	pipeline *postprocess.Pipeline
}

func (a *postprocessAdapter) Run(ctx context.Context, transcription, selectedLanguage string, enabled bool, prompt string) session.PostProcessResult {
	r := a.pipeline.Run(ctx, transcription, selectedLanguage, enabled, prompt)
	return session.PostProcessResult{
		TranscriptionText: r.TranscriptionText,
		PostProcessedText: r.PostProcessedText,
		PromptUsed:        r.PromptUsed,
	}
}

// dispatchAdapter adapts postprocess.Dispatch's free function to the
// session.Dispatcher interface.
type dispatchAdapter struct {
	paster    postprocess.Paster
	clipboard postprocess.ClipboardWriter
}

func (a *dispatchAdapter) Dispatch(ctx context.Context, text string, method config.PasteMethod, delayMs int, clipboardHandling config.ClipboardHandling) error {
	return postprocess.Dispatch(ctx, a.paster, a.clipboard, text, method, delayMs, clipboardHandling)
}

// noopPaster and noopClipboard stand in for the OS-specific keystroke
// synthesis and clipboard backends, which this module leaves to an
// external collaborator (spec.md's scope note on keyboard synthesis).
type noopPaster struct{}

func (noopPaster) Paste(context.Context, string, config.PasteMethod, int, config.ClipboardHandling) error {
	return nil
}

type noopClipboard struct{}

func (noopClipboard) WriteText(string) error { return nil }

// historyAdapter narrows *history.Store to session.HistoryRecorder.
type historyAdapter struct {
	store *history.Store
}

func (a *historyAdapter) Insert(fileName, title, transcription, postProcessed, prompt string) (session.HistoryEntryRef, error) {
	return a.store.Insert(fileName, title, transcription, postProcessed, prompt)
}

// generatorAdapter adapts llmclient.OllamaClient.GenerateStream to
// session.Generator by fixing the model name.
type generatorAdapter struct {
	client *llmclient.OllamaClient
	model  string
}

func (a *generatorAdapter) GenerateStream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	return a.client.GenerateStream(ctx, a.model, prompt, llmclient.GenerateOptions{}, onChunk)
}

// insightAdapter adapts llmclient.OllamaClient.Generate to
// session.InsightGenerator.
type insightAdapter struct {
	client *llmclient.OllamaClient
	model  string
}

func (a *insightAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	return a.client.Generate(ctx, a.model, prompt, llmclient.GenerateOptions{})
}

// ragContextAdapter adapts rag.Store.Search to session.RAGContextSearcher.
type ragContextAdapter struct {
	store *rag.Store
}

func (a *ragContextAdapter) Search(ctx context.Context, query string, topK int, threshold float64) ([]session.RAGHitRef, error) {
	hits, err := a.store.Search(ctx, query, topK, threshold)
	if err != nil {
		return nil, err
	}
	out := make([]session.RAGHitRef, len(hits))
	for i, h := range hits {
		out[i] = session.RAGHitRef{ChunkText: h.ChunkText}
	}
	return out, nil
}

// ragIndexAdapter adapts rag.Store.AddDocument to session.RAGIndexer.
type ragIndexAdapter struct {
	store *rag.Store
}

func (a *ragIndexAdapter) AddDocument(ctx context.Context, content, sourceType, sourceID, title, metadata string) (string, error) {
	return a.store.AddDocument(ctx, content, sourceType, sourceID, title, metadata)
}

// suggestionAdapter adapts suggestion.Engine.Process to
// session.SuggestionDispatcher.
type suggestionAdapter struct {
	engine *suggestion.Engine
}

func (a *suggestionAdapter) Process(ctx context.Context, transcription string) {
	a.engine.Process(ctx, transcription)
}

// ragSearcherAdapter adapts rag.Store.Search to suggestion.RAGSearcher.
type ragSearcherAdapter struct {
	store *rag.Store
}

func (a *ragSearcherAdapter) Search(ctx context.Context, query string, topK int, threshold float64) ([]suggestion.RAGHit, error) {
	hits, err := a.store.Search(ctx, query, topK, threshold)
	if err != nil {
		return nil, err
	}
	out := make([]suggestion.RAGHit, len(hits))
	for i, h := range hits {
		out[i] = suggestion.RAGHit{ChunkText: h.ChunkText, Similarity: h.Similarity, DocumentID: h.DocumentID}
	}
	return out, nil
}

// llmSuggesterAdapter adapts llmclient.ChatCompletionClient.Complete to
// suggestion.LLMSuggester.
type llmSuggesterAdapter struct {
	client *llmclient.ChatCompletionClient
}

func (a *llmSuggesterAdapter) Suggest(ctx context.Context, transcription string) (string, error) {
	return a.client.Complete(ctx, []llmclient.ChatMessage{{
		Role:    "user",
		Content: "Suggest a brief, relevant response to: " + transcription,
	}})
}

// embedderAdapter adapts llmclient.OllamaClient.Embeddings to
// rag.Embedder.
type embedderAdapter struct {
	client *llmclient.OllamaClient
	model  string
}

func (a *embedderAdapter) Embeddings(ctx context.Context, model, prompt string) ([]float32, error) {
	if model == "" {
		model = a.model
	}
	return a.client.Embeddings(ctx, model, prompt)
}
