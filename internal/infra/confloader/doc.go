// Package confloader loads configuration with koanf and watches the
// configuration file with fsnotify.
//
// Priority (highest to lowest):
//
//  1. Command-line flags
//  2. Environment variables (RESPKV_SECTION_KEY)
//  3. Configuration file (YAML)
//  4. Defaults held by the target struct
package confloader
