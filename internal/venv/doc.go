// Package venv implements the local execution backend.
//
// Each environment gets its own Python virtual environment under
// <root>/.envmatrix/<name>, created with `python -m venv` and populated
// with `pip install`. Commands run on the host with the environment's
// bin directory first on PATH and VIRTUAL_ENV set, the way an activated
// virtualenv would behave.
//
// Design decisions:
//   - We shell out to the interpreter and to pip rather than managing
//     site-packages ourselves, so every pip option in a dependency list
//     (-r, -e, --index-url) behaves exactly as on the command line.
//   - Installed dependencies are fingerprinted; an unchanged environment
//     is reused without invoking pip again.
package venv
