// Package logging provides the leveled logger used throughout deckview.
//
// Levels, lowest to highest: DEBUG, INFO, WARN, ERROR. FATAL always prints
// and exits. The level is read once from the DEBUG or LOG_LEVEL environment
// variables and may be overridden at startup with SetLevel (the --log-level
// flag does this).
//
// Components that want their messages tagged use Component:
//
//	log := logging.Component("converter")
//	log.Info("converted %s in %v", path, d)
//	// [INFO] [converter] converted /docs/a.pptx in 3.2s
package logging
