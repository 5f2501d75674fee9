// Package stage defines the pipeline stage contract and the four concrete
// handlers: collect PR context, write the dialogue, render the audio, and
// publish the episode.
package stage
