// Package domain defines the core entities of the image processing
// pipeline: tasks, their step-level lifecycle, and the metadata produced
// for each image.
package domain
