// Conduit is a server-side proxy between browser clients and AI vendors.
//
// Callers send their own vendor API key with each request; conduit checks
// its format, forwards one request to the vendor, and returns the answer
// in a single normalized shape, buffered or as Server-Sent Events.
//
// Usage:
//
//	# Start the proxy with built-in defaults
//	conduit run
//
//	# Start with a configuration file (reloaded on change)
//	conduit run --config /etc/conduit/config.yaml
//
//	# Validate a configuration file
//	conduit config validate --config config.yaml
//
//	# Check a key against its vendor
//	OPENAI_API_KEY=sk-... conduit check-key --provider openai --key-env OPENAI_API_KEY
//
//	# Show version information
//	conduit version
package main

func main() {
	Execute()
}
