package logging

// Per-category convenience helpers. These keep call sites terse:
// logging.Orchestrator("wave %d ready=%d", w, n) instead of
// logging.Get(logging.CategoryOrchestrator).Info(...).

// Boot logs at info level to the boot category.
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// API logs at info level to the api category.
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// APIDebug logs at debug level to the api category.
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

// APIError logs at error level to the api category.
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

// Classifier logs at info level to the classifier category.
func Classifier(format string, args ...interface{}) { Get(CategoryClassifier).Info(format, args...) }

// ClassifierDebug logs at debug level to the classifier category.
func ClassifierDebug(format string, args ...interface{}) {
	Get(CategoryClassifier).Debug(format, args...)
}

// Router logs at info level to the router category.
func Router(format string, args ...interface{}) { Get(CategoryRouter).Info(format, args...) }

// RouterDebug logs at debug level to the router category.
func RouterDebug(format string, args ...interface{}) { Get(CategoryRouter).Debug(format, args...) }

// Verifier logs at info level to the verifier category.
func Verifier(format string, args ...interface{}) { Get(CategoryVerifier).Info(format, args...) }

// VerifierDebug logs at debug level to the verifier category.
func VerifierDebug(format string, args ...interface{}) { Get(CategoryVerifier).Debug(format, args...) }

// Parser logs at info level to the parser category.
func Parser(format string, args ...interface{}) { Get(CategoryParser).Info(format, args...) }

// ParserDebug logs at debug level to the parser category.
func ParserDebug(format string, args ...interface{}) { Get(CategoryParser).Debug(format, args...) }

// Memory logs at info level to the memory category.
func Memory(format string, args ...interface{}) { Get(CategoryMemory).Info(format, args...) }

// MemoryDebug logs at debug level to the memory category.
func MemoryDebug(format string, args ...interface{}) { Get(CategoryMemory).Debug(format, args...) }

// Roles logs at info level to the roles category.
func Roles(format string, args ...interface{}) { Get(CategoryRoles).Info(format, args...) }

// RolesDebug logs at debug level to the roles category.
func RolesDebug(format string, args ...interface{}) { Get(CategoryRoles).Debug(format, args...) }

// Orchestrator logs at info level to the orchestrator category.
func Orchestrator(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Info(format, args...)
}

// OrchestratorDebug logs at debug level to the orchestrator category.
func OrchestratorDebug(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Debug(format, args...)
}

// OrchestratorWarn logs at warn level to the orchestrator category.
func OrchestratorWarn(format string, args ...interface{}) {
	Get(CategoryOrchestrator).Warn(format, args...)
}

// Agentic logs at info level to the agentic category.
func Agentic(format string, args ...interface{}) { Get(CategoryAgentic).Info(format, args...) }

// AgenticDebug logs at debug level to the agentic category.
func AgenticDebug(format string, args ...interface{}) { Get(CategoryAgentic).Debug(format, args...) }

// Session logs at info level to the session category.
func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }

// SessionDebug logs at debug level to the session category.
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }
