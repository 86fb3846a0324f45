// Package queue implements the image processing queue: FIFO task ordering,
// a single background worker driving the three analysis steps per task,
// cooperative stop handling, and durable snapshots that let an interrupted
// run resume at the last completed step.
package queue
