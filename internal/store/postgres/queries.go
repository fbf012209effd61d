package postgres

const queryInsertTask = `
INSERT INTO tasks (user_id, title, description, priority, tags, due_date, completed, is_recurring, recurring_interval, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING id
`

const queryUpsertReminder = `
INSERT INTO reminders (task_id, user_id, task_title, remind_at, due_date, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (task_id) DO UPDATE
SET user_id = EXCLUDED.user_id,
    task_title = EXCLUDED.task_title,
    remind_at = EXCLUDED.remind_at,
    due_date = EXCLUDED.due_date
`

const queryDueReminders = `
SELECT task_id, user_id, task_title, remind_at, due_date, created_at
FROM reminders
WHERE remind_at <= $1
ORDER BY remind_at
LIMIT $2
`

const queryDeleteReminder = `
DELETE FROM reminders WHERE task_id = $1
`

const queryInsertNotification = `
INSERT INTO notifications (user_id, task_id, title, body, created_at)
VALUES ($1, $2, $3, $4, $5)
`
