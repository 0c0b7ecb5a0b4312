// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package normalize turns arbitrary Go values into trees built only from
// nil, bool, numbers, strings, []any and *Object.
package normalize
