// Package thumbnail renders PDF pages to images on demand.
//
// Gate.EnsureThumbnail makes sure the source has a PDF (through the
// conversion gate), validates the page number, then renders the page once
// per (fingerprint, page, resolution) and stores the result in the artifact
// cache. A failed render is remembered like a failed conversion but never
// touches the cached PDF.
//
// Two rasterizers are provided: VipsRasterizer uses libvips in process,
// CommandRasterizer shells out to pdftoppm. Both feed into the same
// normalization step, which fits the image to the resolution width and
// encodes it in the configured format.
package thumbnail
