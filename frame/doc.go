// Package frame provides the video-frame collaborators for the pipeline:
// sources that read raw BGR frames, the grayscale transform and the sinks
// that stand in for a display.
//
// Frames are uncompressed, row-major, 8 bits per sample. Color frames use
// BGR (or BGRA) sample order.
package frame
