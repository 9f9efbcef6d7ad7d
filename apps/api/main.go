package main

// API entrypoint; dependencies are wired by the dig container (apps/api/di/dig).
func main() {
	startWithDig()
}
