// Quorum is a role-based task orchestration daemon: it routes tasks between
// role worker pools, scales the pools against queue pressure, bridges to
// external agent protocols, and alerts on queue and latency metrics.
package main

func main() {
	Execute()
}
