// Package ioutils provides file system and image processing utilities.
//
// This package contains functions for:
//   - Plain and atomic file writing
//   - Filename sanitization for cross-platform compatibility
//   - Directory creation
//   - Image resizing, format conversion, and icon thumbnails
//
// # File Operations
//
//	// Write data to file
//	err := ioutils.WriteFile(ctx, "/path/to/file.txt", []byte("content"))
//
//	// Write through a temp file and rename into place
//	err := ioutils.WriteFileAtomic(ctx, "/feeds/blog.xml", body)
//
//	// Ensure directory exists
//	err := ioutils.EnsureDir("/path/to/new/directory")
//
// # Filename Sanitization
//
// Use SanitizeFileName to remove invalid characters from filenames:
//
//	safe := ioutils.SanitizeFileName("Feed: Part 1/2") // Returns "Feed_ Part 1_2"
//
// # Image Processing
//
// The ImageService handles artwork and icon manipulation:
//
//	svc := ioutils.NewImageService()
//
//	// Resize image to fit within 500x500
//	resized, _ := svc.ResizeImage(ctx, imageData, 500, 500)
//
//	// Convert to JPEG
//	jpeg, _ := svc.ConvertToJPEG(ctx, pngData)
//
//	// Square PNG icon
//	icon, _ := svc.SquareThumbnail(ctx, faviconData, 256)
package ioutils
