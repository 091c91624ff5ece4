package repository

import "errors"

var errEmptyTask = errors.New("task must not be blank")
