// Package dew is an embeddable cooperative task runtime: a concurrency
// substrate for hosting many lightweight, cooperatively-scheduled tasks on
// a small number of OS threads, with structurally-cloned message passing
// across thread boundaries.
//
// A Scheduler drives one OS thread's run loop. Tasks are spawned onto a
// Scheduler and communicate with each other, with timers, and with I/O
// readiness via the methods on Context. Work can be pushed onto separate
// OS threads two ways: SpawnWorker starts another full Scheduler on its own
// thread for long-lived concurrent script execution, while AsyncPool
// offloads a single blocking call without giving it a scheduler of its own.
package dew
