/*
Package ingest turns raw time-source records into payroll.TimeEntry.

PURPOSE:
  Time sources disagree on field names (snake_case, camelCase, PascalCase,
  vendor-specific aliases) and on value types (numbers as strings,
  timestamps as epoch numbers or "/Date(ms)/"). Everything downstream sees
  one canonical record; this package is the only place that looks at raw
  shapes.

RESOLUTION:
  Each canonical field has an ordered candidate list. The first candidate
  present with a usable value wins. Absent or malformed values leave the
  canonical field at its zero value; nothing here fails a batch.
*/
package ingest

// Candidates lists the raw keys tried for one canonical field, in priority order.
type Candidates []string

// Field candidate lists. Keys are matched exactly first, then case-insensitively.
var (
	IDFields = Candidates{"id", "Id", "ID", "entry_id", "entryId", "EntryID", "timesheet_id", "TimesheetID"}

	EmployeeIDFields = Candidates{
		"employee_id", "employeeId", "EmployeeID",
		"payroll_employee_id", "payrollEmployeeId", "PayrollEmployeeID",
	}

	EmployeeNameFields = Candidates{
		"employee_name", "employeeName", "EmployeeName",
		"user_name", "userName", "UserName",
		"full_name", "fullName", "FullName", "name", "Name",
	}

	FirstNameFields = Candidates{"first_name", "firstName", "FirstName"}
	LastNameFields  = Candidates{"last_name", "lastName", "LastName"}

	// UserObjectFields hold a nested employee object.
	UserObjectFields = Candidates{"user", "User", "employee", "Employee"}

	JobCodeFields = Candidates{"job_code", "jobCode", "JobCode", "jobcode", "job", "Job"}

	CategoryFields = Candidates{"category", "Category", "job_name", "jobName", "activity", "Activity"}

	TypeFields = Candidates{"type", "Type", "entry_type", "entryType", "EntryType", "kind"}

	LeaveTypeFields = Candidates{"leave_type", "leaveType", "LeaveType", "leave_type_name", "leaveTypeName"}

	StartFields = Candidates{
		"start", "Start", "start_time", "startTime", "StartTime",
		"started_at", "startedAt", "clock_in", "clockIn", "StartDateTime",
	}

	EndFields = Candidates{
		"end", "End", "end_time", "endTime", "EndTime",
		"ended_at", "endedAt", "clock_out", "clockOut", "EndDateTime",
	}

	DateFields = Candidates{"date", "Date", "work_date", "workDate", "WorkDate"}

	DurationFields = Candidates{
		"duration", "Duration", "hours", "Hours",
		"duration_hours", "durationHours", "units", "Units",
	}

	BreakFields = Candidates{
		"unpaid_break", "unpaidBreak", "UnpaidBreak",
		"unpaid_break_minutes", "unpaidBreakMinutes", "UnpaidBreakMinutes",
		"break_minutes", "breakMinutes", "BreakMinutes", "break", "Break",
	}
)

// EnvelopeFields are the keys a paginated response may wrap its records in.
var EnvelopeFields = Candidates{"data", "Data", "items", "Items", "results", "Results", "entries", "Entries", "timesheets", "Timesheets"}
