// Command retrydemo drives stateless and stateful retries against an unstable
// HTTP endpoint.
package main

func main() {
	Execute()
}
