// Package yamlloader parses YAML configuration text into plain Go values while
// refusing to construct any type that is not on a fixed allow-list. Besides
// maps, sequences, strings, numbers, booleans and null, only two tagged types
// may appear: regular expressions (!ruby/regexp) and symbols (!ruby/symbol).
// Every other tag is rejected before anything is built.
package yamlloader
